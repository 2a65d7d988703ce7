package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide explains how to copy the session cookie out of a
// logged-in browser.
func ShowCookieExtractionGuide(w io.Writer, siteURL string) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"SESSION COOKIE GUIDE",
		rule,
		"",
		"artsync reuses the session of a browser where you are logged in.",
		"",
		"1. Open " + siteURL + " and log in.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Chrome/Edge: Application tab > Cookies > " + siteURL,
		"   Firefox:     Storage tab > Cookies > " + siteURL,
		"4. Copy the value of the PHPSESSID cookie.",
		"   It looks like 12345678_AbCdEfGhIjKlMnOpQrStUvWxYz012345",
		"",
		"Paste either the bare value or the whole \"PHPSESSID=...\" pair.",
		"The cookie grants full access to your account: do not share it.",
		"It is kept in the system keychain or an encrypted file.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// ShowQuickExtractGuide is the one-line reminder printed before the prompt
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 > Application/Storage > Cookies > copy PHPSESSID (type 'help' for details)")
}
