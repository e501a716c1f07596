package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conveyor-ci/conveyor/store"

	jwt "github.com/dgrijalva/jwt-go"
)

func testServer(st *store.Memory) (*Server, chan []byte) {
	send := make(chan []byte, 8)
	return NewServer(":9001", send, st, "test-secret"), send
}

func withReqID(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), keyReqID, "test"))
}

func withSub(req *http.Request, sub string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), keyReqSub, sub))
}

func TestAuthIssuesToken(t *testing.T) {
	st := store.NewMemory()
	st.CreateUser(&store.User{Name: "dev", Email: "dev@localhost", Password: "hunter2"})

	srv, _ := testServer(st)

	payload, _ := json.Marshal(map[string]string{
		"email":    "dev@localhost",
		"password": "hunter2",
	})

	req := httptest.NewRequest(http.MethodPost, "http://test/auth", bytes.NewBuffer(payload))
	req = withReqID(req)
	rw := httptest.NewRecorder()

	srv.handleAuth(rw, req)

	resp := rw.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %v, got %v", http.StatusOK, resp.StatusCode)
	}

	buf, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("got error reading response body: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.Unmarshal(buf, &body); err != nil {
		t.Fatalf("got error unmarshaling response body: %v", err)
	}

	token, err := jwt.ParseWithClaims(body["token"], &jwt.StandardClaims{},
		func(*jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
	if err != nil {
		t.Fatalf("got error parsing issued token: %v", err)
	}

	claims, ok := token.Claims.(*jwt.StandardClaims)
	if !ok || !token.Valid {
		t.Fatalf("expected a valid token")
	}

	if claims.Subject != "dev@localhost" {
		t.Fatalf("expected subject dev@localhost, got %v", claims.Subject)
	}
}

func TestAuthRejectsBadPassword(t *testing.T) {
	st := store.NewMemory()
	st.CreateUser(&store.User{Name: "dev", Email: "dev@localhost", Password: "hunter2"})

	srv, _ := testServer(st)

	payload, _ := json.Marshal(map[string]string{
		"email":    "dev@localhost",
		"password": "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "http://test/auth", bytes.NewBuffer(payload))
	req = withReqID(req)
	rw := httptest.NewRecorder()

	srv.handleAuth(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status %v, got %v", http.StatusUnauthorized, rw.Result().StatusCode)
	}
}

func signedToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   "dev@localhost",
		ExpiresAt: expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("got error signing token: %v", err)
	}

	return signed
}

func TestCheckAuth(t *testing.T) {
	srv, _ := testServer(store.NewMemory())

	called := false
	handler := srv.checkAuth(func(rw http.ResponseWriter, req *http.Request) {
		called = true

		sub := req.Context().Value(keyReqSub).(string)
		if sub != "dev@localhost" {
			t.Fatalf("expected subject dev@localhost, got %v", sub)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "http://test/workflows", nil)
	req = withReqID(req)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", time.Now().Add(time.Hour)))
	rw := httptest.NewRecorder()

	handler(rw, req)

	if !called {
		t.Fatalf("expected wrapped handler to be called")
	}
}

func TestCheckAuthRejections(t *testing.T) {
	srv, _ := testServer(store.NewMemory())

	handler := srv.checkAuth(func(rw http.ResponseWriter, req *http.Request) {
		t.Fatalf("wrapped handler shouldn't be called")
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Bearer"},
		{"wrong secret", "Bearer " + signedToken(t, "other-secret", time.Now().Add(time.Hour))},
		{"expired token", "Bearer " + signedToken(t, "test-secret", time.Now().Add(-time.Hour))},
	}

	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://test/workflows", nil)
		req = withReqID(req)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rw := httptest.NewRecorder()

		handler(rw, req)

		if rw.Result().StatusCode != http.StatusUnauthorized {
			t.Fatalf("%v: expected status %v, got %v",
				c.name, http.StatusUnauthorized, rw.Result().StatusCode)
		}
	}
}
