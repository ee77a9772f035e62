package kobo

import (
	gohtml "html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The sign-in flow depends on values embedded in the Kobo web pages. The
// patterns live here, behind narrow helpers, so a page format change only
// touches this file.

var (
	workflowIDPattern  = regexp.MustCompile(`\?workflowId=([^"]{36})`)
	redirectURLPattern = regexp.MustCompile(`'(kobo://UserAuthenticated\?[^']+)';`)
)

// loginFormTokens extracts the 36-character workflow id and the hidden
// anti-forgery token from the sign-in page HTML.
func loginFormTokens(page string) (workflowID, verificationToken string, err error) {
	match := workflowIDPattern.FindStringSubmatch(page)
	if match == nil {
		return "", "", protocolErrorf("can't find the workflow ID in the login form; the page format might have changed")
	}
	workflowID = gohtml.UnescapeString(match[1])

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", "", err
	}
	verificationToken, ok := doc.Find(`input[name="__RequestVerificationToken"]`).Attr("value")
	if !ok || verificationToken == "" {
		return "", "", protocolErrorf("can't find the request verification token in the login form; the page format might have changed")
	}

	return workflowID, verificationToken, nil
}

// authenticatedRedirectURL finds the kobo://UserAuthenticated redirect in
// the post-login page. Its query string carries the user id and user key.
func authenticatedRedirectURL(page string) (string, error) {
	match := redirectURLPattern.FindStringSubmatch(page)
	if match == nil {
		return "", protocolErrorf("authenticated user URL can't be found; the page format might have changed")
	}
	return gohtml.UnescapeString(match[1]), nil
}

// signInSubmitURL derives the credential POST target from the sign-in page
// URL: same host, fixed path, no query.
func signInSubmitURL(signInPage string) (string, error) {
	u, err := url.Parse(signInPage)
	if err != nil {
		return "", err
	}
	u.Path = "/ww/en/signin/signin/kobo"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
