package obs

import (
	"log"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var bootID atomic.Value // string

// Init stamps the process with a boot id and logs it once.
func Init(service string) string {
	id := service + "#" + time.Now().Format("20060102_150405.000000")
	bootID.Store(id)
	cwd, _ := os.Getwd()
	log.Printf("[boot] id=%s pid=%d root=%s", id, os.Getpid(), cwd)
	return id
}

// BootID returns the id set by Init, or "" before Init.
func BootID() string {
	id, _ := bootID.Load().(string)
	return id
}

// RedactURL hides the password part of a DSN or URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return strings.Replace(u.String(), "%2A%2A%2A%2A", "****", 1)
}
