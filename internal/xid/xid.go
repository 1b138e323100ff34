package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// New returns a sortable row id: prefix, base36 timestamp, random suffix.
func New(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UTC().UnixNano(), 36)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%s", prefix, stamp)
	}
	return fmt.Sprintf("%s_%s%s", prefix, stamp, hex.EncodeToString(buf))
}
