package state

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"
)

// LockInfo describes a lock holder.
type LockInfo struct {
	Token      string    `json:"token"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// NewLockInfo returns lock information identifying the current process, with
// a new random token.
func NewLockInfo(now time.Time) (*LockInfo, error) {
	token, err := NewLockToken()
	if err != nil {
		return nil, err
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return &LockInfo{
		Token:      token,
		Owner:      fmt.Sprintf("%s (pid %d)", host, os.Getpid()),
		AcquiredAt: now.UTC(),
	}, nil
}

// NewLockToken returns a random base58-encoded token.
func NewLockToken() (string, error) {
	data := make([]byte, 16)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed generating lock token: %w", err)
	}
	return base58.Encode(data), nil
}

// DecodeLockInfo parses serialized lock information.
func DecodeLockInfo(data []byte) (*LockInfo, error) {
	li := &LockInfo{}
	if err := json.Unmarshal(data, li); err != nil {
		return nil, fmt.Errorf("failed decoding lock information: %w", err)
	}
	return li, nil
}

// Encode serializes the lock information.
func (li *LockInfo) Encode() ([]byte, error) {
	data, err := json.Marshal(li)
	if err != nil {
		return nil, fmt.Errorf("failed encoding lock information: %w", err)
	}
	return data, nil
}
