package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/billmal071/kobodl/internal/config"
	"github.com/billmal071/kobodl/internal/db"
	"github.com/billmal071/kobodl/internal/kobo"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage Kobo accounts",
	Long: `Manage the Kobo accounts kobodl downloads with.

Examples:
  kobodl user add              Sign in and store an account
  kobodl user list             List stored accounts
  kobodl user rm <email>       Forget an account`,
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Sign in to a Kobo account and store its credentials",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	RunE:  runUserList,
}

var userRmCmd = &cobra.Command{
	Use:   "rm [email]",
	Short: "Remove a stored account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRm,
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRmCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}
	password := string(passwordBytes)
	if password == "" {
		return fmt.Errorf("password is required")
	}

	fmt.Println()
	fmt.Println("Kobo sign-in requires solving a captcha in a browser:")
	fmt.Println("  1. Open https://authorize.kobo.com/signin in a private window")
	fmt.Println("  2. Open the developer console and run:")
	fmt.Println("       document.forms[0]['g-recaptcha-response'].value")
	fmt.Println("     after solving the captcha (do not submit the form)")
	fmt.Println("  3. Paste the value below")
	fmt.Println()
	fmt.Print("Captcha response: ")
	captcha, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	captcha = strings.TrimSpace(captcha)

	user, err := db.GetUser(email)
	if err != nil {
		return err
	}
	if user == nil {
		user = &db.User{Email: email}
	}

	httpClient, err := newHTTPClient()
	if err != nil {
		return err
	}

	client, err := kobo.NewClient(kobo.Config{
		User:       user,
		Save:       db.SaveUser,
		HTTPClient: httpClient,
		UserAgent:  config.Get().Network.UserAgent,
		Logger:     log.Logger,
	})
	if err != nil {
		return err
	}

	// An anonymous device registration is enough to read the endpoint
	// directory; the real login upgrades it.
	if err := client.AuthenticateDevice(""); err != nil {
		return fmt.Errorf("device authentication failed: %w", err)
	}
	if err := client.LoadInitializationSettings(); err != nil {
		return err
	}
	if err := client.Login(email, password, captcha); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	Successf("Signed in as %s", email)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	users, err := db.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No accounts stored. Run 'kobodl user add' to sign in.")
		return nil
	}

	fmt.Printf("Accounts (%d):\n\n", len(users))
	for _, u := range users {
		status := "not authenticated"
		if u.AreAuthenticationSettingsSet() {
			status = "authenticated"
		}
		fmt.Printf("  %s\n", u.Email)
		fmt.Printf("     UserKey: %s\n", u.UserKey)
		fmt.Printf("     Status: %s\n\n", status)
	}
	return nil
}

func runUserRm(cmd *cobra.Command, args []string) error {
	removed, err := db.RemoveUser(args[0])
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if !removed {
		return fmt.Errorf("no account found for %s", args[0])
	}
	Successf("Removed %s", args[0])
	return nil
}

// resolveUser picks the account to operate on. With a single stored account
// the flag is optional; with several it is required.
func resolveUser(identifier string) (*db.User, error) {
	users, err := db.ListUsers()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no accounts found; did you run 'kobodl user add'?")
	}

	if identifier == "" {
		if len(users) > 1 {
			return nil, fmt.Errorf("must provide --user when more than one account exists")
		}
		return users[0], nil
	}

	user, err := db.GetUser(identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("could not find account with email or user key %q", identifier)
	}
	return user, nil
}
