package web

import (
	"net/http"
)

const Path = "/dmp9250"

const indexPage = `<!DOCTYPE html>
<html>
<head><title>dmp9250</title></head>
<body>
<pre id="reading">waiting for data</pre>
<script>
var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "` + Path + `");
ws.onmessage = function (e) {
  document.getElementById("reading").textContent = JSON.stringify(JSON.parse(e.data), null, 2);
};
</script>
</body>
</html>
`

// NewHandler serves a live page at /, the websocket stream at Path and the last
// published message at /latest.
func NewHandler(r *Room) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
	})
	mux.Handle(Path, r)
	mux.HandleFunc("/latest", func(w http.ResponseWriter, req *http.Request) {
		msg := r.Last()
		if msg == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(msg)
	})
	return mux
}
