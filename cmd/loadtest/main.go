package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL    = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairs    = flag.Int("pairs", 50, "number of chat pairs")
	msgCount = flag.Int("messages", 20, "messages per user")
)

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int    `json:"user_id"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func main() {
	flag.Parse()
	log.Printf("Starting load test: %d users, %d messages each", *pairs*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Println("Load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("load_%d_a", pairID)
	userB := fmt.Sprintf("load_%d_b", pairID)

	tokenA, idA := login(userA)
	tokenB, idB := login(userB)
	if tokenA == "" || tokenB == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatLoop(&wsWg, tokenA, idA, idB)
	go chatLoop(&wsWg, tokenB, idB, idA)
	wsWg.Wait()
}

// login expects the users to exist already; seed them before running.
func login(username string) (string, int) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": "password123"})
	resp, err := http.Post(*baseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("Login failed [%s]: %v", username, err)
		return "", 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Login rejected [%s]: %s", username, resp.Status)
		return "", 0
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", 0
	}
	return data.AccessToken, data.UserID
}

func chatLoop(wg *sync.WaitGroup, token string, selfID, peerID int) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+token, nil)
	if err != nil {
		log.Printf("Dial failed for user %d: %v", selfID, err)
		return
	}
	defer conn.Close()

	// Drain inbound frames so the server never sees a slow consumer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	join := envelope{Event: "join_chat", Data: map[string]string{"room": fmt.Sprintf("user:%d", selfID)}}
	if err := conn.WriteJSON(join); err != nil {
		return
	}

	for i := 0; i < *msgCount; i++ {
		msg := envelope{Event: "send_message", Data: map[string]any{
			"recipient_id": peerID,
			"content":      fmt.Sprintf("load message %d from %d", i, selfID),
			"message_type": "text",
		}}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Write failed for user %d: %v", selfID, err)
			return
		}
		time.Sleep(150 * time.Millisecond)
	}
}
