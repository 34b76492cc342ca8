//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

const gwBaseURL = "http://127.0.0.1:8080"

func httpPostJSON(t *testing.T, url string, body any, wantCode int) []byte {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantCode {
		t.Fatalf("http POST %s: got %d want %d body=%s", url, resp.StatusCode, wantCode, string(data))
	}
	return data
}

func httpGetAuth(t *testing.T, url, token string, wantCode int) []byte {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantCode {
		t.Fatalf("http GET %s: got %d want %d body=%s", url, resp.StatusCode, wantCode, string(data))
	}
	return data
}

func TestRegisterLoginMe_Basic(t *testing.T) {
	email := fmt.Sprintf("it-gw-%d@example.com", time.Now().UnixNano())
	pass := "integration secret 1"

	httpPostJSON(t, gwBaseURL+"/api/v1/auth/register", map[string]string{
		"email":    email,
		"username": "it-gw",
		"password": pass,
	}, 201)

	loginResp := httpPostJSON(t, gwBaseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": pass,
	}, 200)

	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	if err := json.Unmarshal(loginResp, &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login.TokenType != "bearer" || login.AccessToken == "" {
		t.Fatalf("unexpected login payload: %s", string(loginResp))
	}

	meResp := httpGetAuth(t, gwBaseURL+"/api/v1/auth/me", login.AccessToken, 200)
	var me map[string]any
	if err := json.Unmarshal(meResp, &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me["email"] != email {
		t.Fatalf("me returned wrong user: %s", string(meResp))
	}

	// no credentials at all
	httpGetAuth(t, gwBaseURL+"/api/v1/auth/me", "", 401)
}

func TestLogoutRevokesToken(t *testing.T) {
	email := fmt.Sprintf("it-gw-logout-%d@example.com", time.Now().UnixNano())
	pass := "integration secret 2"

	httpPostJSON(t, gwBaseURL+"/api/v1/auth/register", map[string]string{
		"email":    email,
		"username": "it-gw-logout",
		"password": pass,
	}, 201)

	loginResp := httpPostJSON(t, gwBaseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": pass,
	}, 200)
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(loginResp, &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, gwBaseURL+"/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("logout: got %d want 200", resp.StatusCode)
	}

	httpGetAuth(t, gwBaseURL+"/api/v1/auth/me", login.AccessToken, 401)
}

func TestHealthIsPublic(t *testing.T) {
	httpGetAuth(t, gwBaseURL+"/api/v1/health", "", 200)
}
