package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-sync/pkg/model"
)

// Terminal chat client for poking at a local stack. Signs in with a locally
// minted dev identity credential, opens a conversation with the partner and
// subscribes to its message and typing feeds.

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type frame struct {
	Sub      string       `json:"sub"`
	Type     string       `json:"type"`
	Code     string       `json:"code,omitempty"`
	Error    string       `json:"error,omitempty"`
	Event    *model.Event `json:"event,omitempty"`
	Snapshot *struct {
		Messages []model.Message `json:"messages,omitempty"`
		Typing   map[string]bool `json:"typing,omitempty"`
	} `json:"snapshot,omitempty"`
}

type command struct {
	Action         string `json:"action"`
	Sub            string `json:"sub,omitempty"`
	Type           string `json:"type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

func mintCredential(secret, userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"name":  userID,
		"email": userID + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func login(apiAddr, credential string) (*loginResponse, error) {
	reqBody, _ := json.Marshal(map[string]string{"credential": credential})
	resp, err := http.Post(apiAddr+"/auth/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed: %s", string(body))
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func openConversation(apiAddr, token, partnerID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"partner_id": partnerID})
	req, _ := http.NewRequest(http.MethodPost, apiAddr+"/conversations", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("open conversation failed: %s", string(body))
	}

	var conv model.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return "", err
	}
	return conv.ConversationID, nil
}

func sendMessage(apiAddr, token, convID, content string) error {
	reqBody, _ := json.Marshal(map[string]string{"content": content})
	req, _ := http.NewRequest(http.MethodPost, apiAddr+"/conversations/"+convID+"/messages", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed: %s", string(body))
	}
	return nil
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	secret := flag.String("secret", "dev-identity-secret", "identity provider secret")
	userID := flag.String("user", "user1", "user id")
	partnerID := flag.String("partner", "user2", "user id to chat with")
	flag.Parse()

	credential, err := mintCredential(*secret, *userID)
	if err != nil {
		log.Fatal("mint credential:", err)
	}

	log.Printf("Signing in as %s...", *userID)
	session, err := login(*apiAddr, credential)
	if err != nil {
		log.Fatal("login:", err)
	}
	log.Printf("Signed in. Token: %s...", session.Token[:10])

	convID, err := openConversation(*apiAddr, session.Token, *partnerID)
	if err != nil {
		log.Fatal("open conversation:", err)
	}
	log.Printf("Conversation: %s", convID)

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+session.Token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	subscribe := func(sub, kind string) {
		cmd := command{Action: "subscribe", Sub: sub, Type: kind, ConversationID: convID}
		raw, _ := json.Marshal(cmd)
		if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Fatal("subscribe:", err)
		}
	}
	subscribe("msgs", "messages")
	subscribe("typ", "typing")

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				log.Printf("Received raw: %s", raw)
				continue
			}

			switch {
			case f.Type == "error":
				fmt.Printf("\r[%s] error %s: %s\n> ", f.Sub, f.Code, f.Error)
			case f.Type == "snapshot" && f.Snapshot != nil:
				for i := len(f.Snapshot.Messages) - 1; i >= 0; i-- {
					m := f.Snapshot.Messages[i]
					fmt.Printf("\r%s: %s\n", m.SenderID, m.Content)
				}
				fmt.Print("> ")
			case f.Event != nil && f.Event.Kind == model.EventTyping && f.Event.Typing != nil:
				if f.Event.Typing.UserID != *userID && f.Event.Typing.IsTyping {
					fmt.Printf("\r%s is typing...      \n> ", f.Event.Typing.UserID)
				}
			case f.Event != nil && f.Event.Kind == model.EventMessageNew && f.Event.Message != nil:
				fmt.Printf("\r%s: %s\n> ", f.Event.Message.SenderID, f.Event.Message.Content)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				close(interrupt)
				break
			}

			if text == "/typing" {
				cmd := command{Action: "typing", ConversationID: convID, IsTyping: true}
				raw, _ := json.Marshal(cmd)
				if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
					log.Println("write:", err)
					break
				}
				fmt.Print("> ")
				continue
			}

			if err := sendMessage(*apiAddr, session.Token, convID, text); err != nil {
				log.Println("send:", err)
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
