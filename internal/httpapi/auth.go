package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	authCookie    = "dh_auth"
	authCookieTTL = 30 * 24 * time.Hour
)

//go:embed login.html
var loginPage []byte

// authenticator gates requests behind a shared password. The cookie holds an
// HMAC of the password, never the password itself.
type authenticator struct {
	token string
}

func newAuthenticator(password string) *authenticator {
	if password == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(authCookie))
	return &authenticator{token: hex.EncodeToString(mac.Sum(nil))}
}

func (a *authenticator) validPassword(candidate string) bool {
	if candidate == "" {
		return false
	}
	other := newAuthenticator(candidate)
	return hmac.Equal([]byte(a.token), []byte(other.token))
}

func (a *authenticator) validCookie(r *http.Request) bool {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(a.token), []byte(cookie.Value))
}

func (a *authenticator) setCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    a.token,
		Path:     "/",
		MaxAge:   int(authCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// middleware admits requests with a valid cookie, logs in via ?pw= with a
// redirect back to the same path, and otherwise serves the login page.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.validCookie(r) {
			next.ServeHTTP(w, r)
			return
		}
		if a.validPassword(r.URL.Query().Get("pw")) {
			a.setCookie(w, r)
			http.Redirect(w, r, r.URL.Path, http.StatusFound)
			return
		}
		writeLoginPage(w)
	})
}

// login handles the form POST.
func (a *authenticator) login(w http.ResponseWriter, r *http.Request) {
	if a == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := r.ParseForm(); err == nil && a.validPassword(r.PostForm.Get("password")) {
		a.setCookie(w, r)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	writeLoginPage(w)
}

func writeLoginPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(loginPage)
}
