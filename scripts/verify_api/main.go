package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Smoke-checks a running API: mints a dev identity credential, signs in, opens
// a conversation and appends a message. Only useful against a local stack
// sharing the dev identity secret.

type loginResponse struct {
	Token string `json:"token"`
}

func mintCredential(secret, userID, name, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"name":  name,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func postJSON(url, token string, body any) (*http.Response, error) {
	raw, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	secret := flag.String("secret", "dev-identity-secret", "identity provider secret")
	userID := flag.String("user", "verify-user-a", "user id to sign in as")
	partnerID := flag.String("partner", "verify-user-b", "partner user id")
	flag.Parse()

	credential, err := mintCredential(*secret, *userID, "Verify User", *userID+"@example.com")
	if err != nil {
		log.Fatalf("mint credential: %v", err)
	}

	resp, err := postJSON(*apiAddr+"/auth/login", "", map[string]string{"credential": credential})
	if err != nil {
		log.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("login failed (%d): %s", resp.StatusCode, body)
	}
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		log.Fatalf("decode login response: %v", err)
	}
	fmt.Printf("token: %s...\n", login.Token[:10])

	resp, err = postJSON(*apiAddr+"/conversations", login.Token, map[string]string{"partner_id": *partnerID})
	if err != nil {
		log.Fatalf("create conversation: %v", err)
	}
	defer resp.Body.Close()
	var conv struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		log.Fatalf("decode conversation: %v", err)
	}
	fmt.Printf("conversation: %s\n", conv.ConversationID)

	resp, err = postJSON(*apiAddr+"/conversations/"+conv.ConversationID+"/messages", login.Token, map[string]string{
		"content": "verify_api ping " + time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Fatalf("append message: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("message (%d): %s\n", resp.StatusCode, body)
}
