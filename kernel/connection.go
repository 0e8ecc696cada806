package kernel

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
)

// ConnectionFile is the out-of-band descriptor a client reads to find and
// authenticate to a running kernel, matching the Jupyter connection file
// shape: transport, ports per channel, and the HMAC signing key.
type ConnectionFile struct {
	IP              string `json:"ip"`
	Transport       string `json:"transport"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
}

// NewConnectionFile generates a fresh random signing key. Ports are caller
// assigned (0 is valid for in-process transports that don't bind a socket).
func NewConnectionFile(ip string, shell, iopub, stdin, control, hb int) (ConnectionFile, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return ConnectionFile{}, err
	}
	return ConnectionFile{
		IP: ip, Transport: "tcp",
		ShellPort: shell, IOPubPort: iopub, StdinPort: stdin, ControlPort: control, HBPort: hb,
		Key: hex.EncodeToString(key), SignatureScheme: SignatureScheme,
	}, nil
}

// Save writes the connection file as JSON to path.
func (c ConnectionFile) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadConnectionFile reads a connection file written by Save.
func LoadConnectionFile(path string) (ConnectionFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ConnectionFile{}, err
	}
	var c ConnectionFile
	if err := json.Unmarshal(b, &c); err != nil {
		return ConnectionFile{}, err
	}
	return c, nil
}

// KeyBytes decodes the hex-encoded signing key.
func (c ConnectionFile) KeyBytes() ([]byte, error) {
	return hex.DecodeString(c.Key)
}
