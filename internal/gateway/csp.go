package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// chatPage is the built-in web chat client. Inline script and style are
// allowed only through the per-request CSP nonce.
const chatPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>haya</title>
<style nonce="%[1]s">
body { font-family: -apple-system, system-ui, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; background: #111; color: #eee; }
#log { border: 1px solid #333; border-radius: 8px; padding: 1rem; min-height: 280px; white-space: pre-wrap; }
#row { display: flex; gap: 0.5rem; margin-top: 0.75rem; }
#input { flex: 1; padding: 0.5rem; background: #1a1a1a; color: #eee; border: 1px solid #333; border-radius: 6px; }
button { padding: 0.5rem 1rem; border: 0; border-radius: 6px; background: #4a7; color: #111; cursor: pointer; }
.role { color: #8ac; }
</style>
</head>
<body>
<h1>haya</h1>
<div id="log"></div>
<div id="row">
<input id="input" placeholder="Message" autofocus>
<button id="send">Send</button>
</div>
<script nonce="%[1]s">
(function () {
  var log = document.getElementById("log");
  var input = document.getElementById("input");
  var sessionId = "web-" + Math.random().toString(36).slice(2, 10);
  var nextId = 1;
  var pending = null;

  function append(text) {
    log.textContent += text;
    log.scrollTop = log.scrollHeight;
  }

  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/ws");
  ws.onopen = function () {
    var token = new URLSearchParams(location.search).get("token");
    ws.send(JSON.stringify({ id: "c1", method: "connect", params: token ? { token: token } : {} }));
  };
  ws.onmessage = function (ev) {
    var frame = JSON.parse(ev.data);
    if (frame.event === "chat.delta") {
      if (frame.data.delta) append(frame.data.delta);
      if (frame.data.done) { append("\n"); pending = null; }
      return;
    }
    if (frame.id && frame.error) {
      append("\n[error] " + frame.error.message + "\n");
      pending = null;
    }
  };
  ws.onclose = function () { append("\n[disconnected]\n"); };

  function send() {
    var text = input.value.trim();
    if (!text || pending || ws.readyState !== WebSocket.OPEN) return;
    input.value = "";
    append("you: " + text + "\nhaya: ");
    pending = "r" + nextId++;
    ws.send(JSON.stringify({ id: pending, method: "chat.send", params: { sessionId: sessionId, message: text } }));
  }
  document.getElementById("send").addEventListener("click", send);
  input.addEventListener("keydown", function (ev) { if (ev.key === "Enter") send(); });
})();
</script>
</body>
</html>
`

// handleChatPage serves the web chat client with a strict nonce-based
// Content-Security-Policy.
func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	nonce, err := newNonce()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	csp := fmt.Sprintf("default-src 'self'; base-uri 'none'; object-src 'none'; frame-ancestors 'none'; "+
		"script-src 'self' 'nonce-%[1]s'; style-src 'self' 'nonce-%[1]s'; "+
		"img-src 'self' data: https:; font-src 'self'; connect-src 'self' ws: wss:", nonce)
	w.Header().Set("Content-Security-Policy", csp)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, chatPage, nonce)
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
