package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"othello/bot"
	"othello/match"
)

const cleanBot = `
function new(my_color, opp_color)
    local p = {}
    function p.select_move(self, board)
        return 1, 1
    end
    return p
end
`

func newTestServer(t *testing.T) (*httptest.Server, *bot.Catalog) {
	t.Helper()
	catalog, err := bot.NewCatalog(t.TempDir())
	require.NoError(t, err)
	registry := match.NewRegistry(catalog)
	t.Cleanup(registry.CloseAll)

	srv := New(":0", catalog, registry)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, catalog
}

func uploadRequest(t *testing.T, url, filename, source string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(source))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(url+"/api/bots/upload", w.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBotEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("lists the builtins", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/bots")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		bots := body["bots"].([]any)
		require.Len(t, bots, 2)
	})

	t.Run("accepts a clean upload", func(t *testing.T) {
		resp := uploadRequest(t, ts.URL, "corner.lua", cleanBot)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Equal(t, true, body["accepted"])
		botInfo := body["bot"].(map[string]any)
		require.Equal(t, "corner", botInfo["name"])

		resp2 := uploadRequest(t, ts.URL, "corner.lua", cleanBot)
		require.Equal(t, http.StatusConflict, resp2.StatusCode)
		resp2.Body.Close()
	})

	t.Run("rejects a flagged upload with the violation list", func(t *testing.T) {
		resp := uploadRequest(t, ts.URL, "evil.lua", `local o = require("os")`+cleanBot)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody(t, resp)
		require.Equal(t, false, body["accepted"])
		violations := body["violations"].([]any)
		require.NotEmpty(t, violations)
		first := violations[0].(map[string]any)
		require.Equal(t, "DANGEROUS_IMPORT", first["type"])
	})

	t.Run("rejects non-lua uploads", func(t *testing.T) {
		resp := uploadRequest(t, ts.URL, "bot.py", "print('hi')")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("removes uploaded bots only", func(t *testing.T) {
		resp := uploadRequest(t, ts.URL, "doomed.lua", cleanBot)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		del := func(name string) *http.Response {
			req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/bots/"+name, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			return resp
		}

		resp = del("doomed")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = del("doomed")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()

		resp = del("random")
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("security log records rejections", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/security/log")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		entries := body["entries"].([]any)
		require.NotEmpty(t, entries, "The flagged upload from the earlier subtest must be on record")
	})
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/test-client"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// recvType reads messages until one of the wanted type arrives, skipping
// interleaved game_state broadcasts.
func recvType(t *testing.T, conn *websocket.Conn, typ string) Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg Outbound
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
		require.Equal(t, MsgGameState, msg.Type,
			"Only game_state broadcasts may interleave while waiting for %s", typ)
	}
}

func humanMatchConfig() *match.Config {
	return &match.Config{
		BoardSize:       8,
		BlackPlayerType: match.Human,
		WhitePlayerType: match.Human,
	}
}

func TestWebsocketMatchFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	send(t, conn, Inbound{Type: MsgCreateMatch, Config: humanMatchConfig()})
	created := recvType(t, conn, MsgMatchCreated)
	require.NotEmpty(t, created.MatchID)
	require.NotNil(t, created.State)
	require.Len(t, created.State.ValidMoves, 4)

	row, col := 2, 3
	send(t, conn, Inbound{Type: MsgPlayMove, MatchID: created.MatchID, Row: &row, Col: &col})

	// The acknowledgement carries the coordinates; the board update arrives
	// as a game_state broadcast. Their relative order is not fixed.
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	sawPlayed, sawUpdate := false, false
	for !sawPlayed || !sawUpdate {
		var msg Outbound
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MsgMovePlayed:
			require.Equal(t, created.MatchID, msg.MatchID)
			require.NotNil(t, msg.Row)
			require.NotNil(t, msg.Col)
			require.Equal(t, 2, *msg.Row)
			require.Equal(t, 3, *msg.Col)
			require.Nil(t, msg.State, "move_played acknowledges coordinates only")
			sawPlayed = true
		case MsgGameState:
			require.NotNil(t, msg.State)
			if msg.State.LastMove != nil {
				require.Equal(t, &[2]int{2, 3}, msg.State.LastMove)
				sawUpdate = true
			}
		default:
			t.Fatalf("unexpected message type %q after play_move", msg.Type)
		}
	}

	// Illegal move comes back as an error without killing the connection.
	bad := 0
	send(t, conn, Inbound{Type: MsgPlayMove, MatchID: created.MatchID, Row: &bad, Col: &bad})
	errMsg := recvType(t, conn, MsgError)
	require.Contains(t, errMsg.Message, "illegal move")

	send(t, conn, Inbound{Type: MsgTogglePause, MatchID: created.MatchID})
	paused := recvType(t, conn, MsgGameState)
	require.True(t, paused.State.Paused)

	send(t, conn, Inbound{Type: MsgTogglePause, MatchID: created.MatchID})

	send(t, conn, Inbound{Type: MsgGetState, MatchID: created.MatchID})
	st := recvType(t, conn, MsgGameState)
	require.Equal(t, created.MatchID, st.MatchID)
}

func TestWebsocketErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	t.Run("unknown message type", func(t *testing.T) {
		send(t, conn, Inbound{Type: "launch_missiles"})
		msg := recvType(t, conn, MsgError)
		require.Contains(t, msg.Message, "unknown message type")
	})

	t.Run("unknown match id", func(t *testing.T) {
		send(t, conn, Inbound{Type: MsgGetState, MatchID: "nope"})
		msg := recvType(t, conn, MsgError)
		require.Contains(t, msg.Message, "not found")
	})

	t.Run("create without config", func(t *testing.T) {
		send(t, conn, Inbound{Type: MsgCreateMatch})
		msg := recvType(t, conn, MsgError)
		require.Contains(t, msg.Message, "config")
	})

	t.Run("malformed payload", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		msg := recvType(t, conn, MsgError)
		require.Contains(t, msg.Message, "malformed")
	})
}

func TestWebsocketBotMatch(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	cfg := &match.Config{
		BoardSize:       4,
		BlackPlayerType: match.Bot,
		BlackBotName:    "random",
		WhitePlayerType: match.Bot,
		WhiteBotName:    "greedy",
		MoveTimeout:     5,
	}
	send(t, conn, Inbound{Type: MsgCreateMatch, Config: cfg})
	created := recvType(t, conn, MsgMatchCreated)
	require.NotEmpty(t, created.MatchID)

	end := recvType(t, conn, MsgMatchEnd)
	require.Equal(t, created.MatchID, end.MatchID)
	require.NotNil(t, end.Winner)
	require.NotEmpty(t, end.Message)
}
