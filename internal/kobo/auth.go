package kobo

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// AuthenticateDevice obtains a device-scoped bearer token pair. The initial
// registration for a not-yet-logged-in user passes an empty userKey; the
// user key returned for that case is not usable and is discarded. On first
// use a fresh device id is generated and kept for the lifetime of the
// record.
func (c *Client) AuthenticateDevice(userKey string) error {
	if c.user.DeviceID == "" {
		c.user.DeviceID = uuid.NewString()
		c.user.AccessToken = ""
		c.user.RefreshToken = ""
	}

	payload := map[string]string{
		"AffiliateName": Affiliate,
		"AppVersion":    ApplicationVersion,
		"ClientKey":     base64.StdEncoding.EncodeToString([]byte(DefaultPlatformID)),
		"DeviceId":      c.user.DeviceID,
		"PlatformId":    DefaultPlatformID,
	}
	if userKey != "" {
		payload["UserKey"] = userKey
	}

	var auth authResponse
	if err := c.postJSON(c.storeAPI+"/v1/auth/device", payload, "", &auth); err != nil {
		return err
	}

	if auth.TokenType != "Bearer" {
		return protocolErrorf("device authentication returned with an unsupported token type: %q", auth.TokenType)
	}

	c.user.AccessToken = auth.AccessToken
	c.user.RefreshToken = auth.RefreshToken
	if !c.user.AreAuthenticationSettingsSet() {
		return protocolErrorf("authentication settings are not set after device authentication")
	}

	if userKey != "" {
		c.user.UserKey = auth.UserKey
	}

	c.log.Debug().Str("device_id", c.user.DeviceID).Msg("device authenticated")
	return c.persist()
}

// refreshAuthentication exchanges the refresh token for a new token pair.
// The refresh endpoint is itself bearer-protected, so the request carries
// the pre-refresh access token.
func (c *Client) refreshAuthentication() error {
	payload := map[string]string{
		"AppVersion":   ApplicationVersion,
		"ClientKey":    base64.StdEncoding.EncodeToString([]byte(DefaultPlatformID)),
		"PlatformId":   DefaultPlatformID,
		"RefreshToken": c.user.RefreshToken,
	}

	var auth authResponse
	if err := c.postJSON(c.storeAPI+"/v1/auth/refresh", payload, c.user.AccessToken, &auth); err != nil {
		return err
	}

	if auth.TokenType != "Bearer" {
		return protocolErrorf("authentication refresh returned with an unsupported token type: %q", auth.TokenType)
	}

	c.user.AccessToken = auth.AccessToken
	c.user.RefreshToken = auth.RefreshToken
	if !c.user.AreAuthenticationSettingsSet() {
		return protocolErrorf("authentication settings are not set after authentication refresh")
	}

	return c.persist()
}

// Login performs the interactive web sign-in: it scrapes the workflow id
// and anti-forgery token out of the sign-in page, posts the credentials,
// extracts the user id and user key from the post-login redirect, and
// finishes with a device authentication (which persists the record).
//
// The captcha argument is the g-recaptcha-response produced by solving the
// captcha on the sign-in page.
func (c *Client) Login(email, password, captcha string) error {
	signInURL, workflowID, verificationToken, err := c.loginParameters()
	if err != nil {
		return err
	}

	form := url.Values{
		"LogInModel.WorkflowId":      {workflowID},
		"LogInModel.Provider":        {Affiliate},
		"ReturnUrl":                  {""},
		"__RequestVerificationToken": {verificationToken},
		"LogInModel.UserName":        {email},
		"LogInModel.Password":        {password},
		"g-recaptcha-response":       {captcha},
	}

	req, err := c.newRequest(http.MethodPost, signInURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp, err = checkStatus(resp)
	if err != nil {
		return err
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	redirect, err := authenticatedRedirectURL(string(page))
	if err != nil {
		return err
	}

	parsed, err := url.Parse(redirect)
	if err != nil {
		return fmt.Errorf("failed to parse authenticated user URL: %w", err)
	}
	query := parsed.Query()
	userID := query.Get("userId")
	userKey := query.Get("userKey")
	if userID == "" || userKey == "" {
		return protocolErrorf("authenticated user URL %q is missing the userId or userKey parameter", redirect)
	}

	// AuthenticateDevice persists the record once it succeeds, so the user
	// id assignment rides along with it.
	c.user.UserID = userID
	return c.AuthenticateDevice(userKey)
}

// loginParameters fetches the sign-in page and scrapes the values the
// credential POST must echo back.
func (c *Client) loginParameters() (signInURL, workflowID, verificationToken string, err error) {
	pageURL, err := c.resource("sign_in_page")
	if err != nil {
		return "", "", "", err
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to parse sign_in_page URL: %w", err)
	}
	query := u.Query()
	query.Set("wsa", Affiliate)
	query.Set("pwsav", ApplicationVersion)
	query.Set("pwspid", DefaultPlatformID)
	query.Set("pwsdid", c.user.DeviceID)
	u.RawQuery = query.Encode()

	req, err := c.newRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", "", err
	}
	resp, err = checkStatus(resp)
	if err != nil {
		return "", "", "", err
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", "", "", err
	}

	workflowID, verificationToken, err = loginFormTokens(string(page))
	if err != nil {
		return "", "", "", err
	}

	signInURL, err = signInSubmitURL(pageURL)
	if err != nil {
		return "", "", "", err
	}
	return signInURL, workflowID, verificationToken, nil
}

// postJSON posts a JSON payload and decodes the JSON response. When
// accessToken is non-empty the request carries it as a bearer header. Auth
// endpoints are exempt from the one-shot repair of doAuthorized, so this
// goes straight through the HTTP client.
func (c *Client) postJSON(url string, payload interface{}, accessToken string, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := c.newRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp, err = checkStatus(resp)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
