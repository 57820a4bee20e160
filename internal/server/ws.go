package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"

	"volare/internal/bets"
	"volare/internal/game"
)

// gameWebSocketHandler speaks the colon-delimited text protocol. Clients send
// BET:<nonce>:<username>:<amount>:<slot>, CASHOUT:<slot> and PING; everything
// else about the round arrives through hub broadcasts.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	username := conn.Query("username", userID)

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)
	s.sendInitialState(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(client)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg := strings.TrimSpace(string(message))
		switch {
		case msg == "PING":
			client.Send("PONG")

		case strings.HasPrefix(msg, "BET:"):
			s.handleBetMessage(client, userID, username, msg)

		case strings.HasPrefix(msg, "CASHOUT:"):
			s.handleCashoutMessage(client, userID, msg)
		}
	}
}

// sendInitialState catches a fresh connection up with the round in progress:
// current state, the seed commitment, open bets and recent outcomes.
func (s *FiberServer) sendInitialState(client *game.Client) {
	view, ok := s.engine.StateView()
	if !ok {
		client.Send("STATE:WAITING")
		return
	}

	if view.Status == string(bets.StatusFlying) {
		client.Send("STATE:RUNNING")
		client.Send("TICK:" + strconv.FormatFloat(view.Multiplier, 'f', 2, 64))
	} else {
		client.Send("STATE:WAITING")
		if remaining := view.StartTime - time.Now().UnixMilli(); remaining > 0 {
			client.Send(fmt.Sprintf("TIMER:%d", remaining/1000))
		}
	}
	client.Send("HASH:" + view.Commitment)

	for _, bet := range s.ledger.CurrentBets() {
		client.Send(fmt.Sprintf("BET:%s:%s:%.2f:%d:%s",
			bet.UserID, bet.Username, bet.Amount, bet.Slot, ""))
	}

	history, err := s.engine.History(context.Background(), 50)
	if err == nil && len(history) > 0 {
		client.Send("HISTORY:" + strings.Join(history, ","))
	}
}

// handleBetMessage parses BET:<nonce>:<username>:<amount>:<slot>. An empty
// username field falls back to the connection's identity.
func (s *FiberServer) handleBetMessage(client *game.Client, userID, username, msg string) {
	parts := strings.Split(msg, ":")
	if len(parts) != 5 {
		client.Send("ERROR:Invalid bet format")
		return
	}

	nonce := parts[1]
	if parts[2] != "" {
		username = parts[2]
	}
	amount, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		client.Send("ERROR:Invalid bet amount")
		return
	}
	slot, err := strconv.Atoi(parts[4])
	if err != nil {
		client.Send("ERROR:Invalid slot")
		return
	}

	if err := s.ledger.Place(context.Background(), userID, username, amount, 0, slot, nonce); err != nil {
		client.Send("ERROR:" + err.Error())
	}
}

func (s *FiberServer) handleCashoutMessage(client *game.Client, userID, msg string) {
	slot, err := strconv.Atoi(strings.TrimPrefix(msg, "CASHOUT:"))
	if err != nil {
		client.Send("ERROR:Invalid slot")
		return
	}

	if _, err := s.ledger.CashOut(context.Background(), userID, slot); err != nil {
		client.Send("ERROR:" + err.Error())
		return
	}
	client.Send("CASHOUT_OK")
}
