// Package shutdown implements the stop handshake used to shut a running
// host down from another process.
//
// The client connects to 127.0.0.1:<stop port> and sends two CRLF
// terminated lines: the shared key and a command. The monitor answers with
// plain text lines and closes the connection. A key mismatch is answered
// with nothing at all. The key is a shared secret that authorises the
// command, not a cryptographic credential.
package shutdown

import (
	"bufio"
	"io"
	"strings"
)

// Commands understood by the monitor.
const (
	CommandStop   = "stop"
	CommandStatus = "status"
)

// Replies written by the monitor.
const (
	ReplyStopped = "Stopped"
	ReplyOK      = "OK"
)

// LoopbackHost is the only interface the handshake uses.
const LoopbackHost = "127.0.0.1"

// maxLine bounds a single protocol line.
const maxLine = 1024

func encodeRequest(key, command string) []byte {
	return []byte(key + "\r\n" + command + "\r\n")
}

// readLine reads one line without its CR/LF terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
