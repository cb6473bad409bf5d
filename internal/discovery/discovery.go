// Package discovery provides LAN broadcast/scan convenience for locating
// an RUDP server without a configured address (SPEC_FULL.md §4.11). It is
// a thin layer above Listen/Connect: the protocol engine has no knowledge
// of it.
package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"
)

const payloadPrefix = "sharprudp:"

// Announcement is one server found by Scan.
type Announcement struct {
	Host string
	Port int
}

func (a Announcement) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Advertise broadcasts "sharprudp:<port>" on the local network every
// interval until stop is closed. It blocks until then and returns any
// error from the underlying discovery, which it also logs; it does not
// retry.
func Advertise(port int, interval time.Duration, stop chan struct{}) error {
	_, err := peerdiscovery.Discover(peerdiscovery.Settings{
		Limit:            -1,
		Payload:          []byte(payloadPrefix + strconv.Itoa(port)),
		Delay:            interval,
		TimeLimit:        -1,
		StopChan:         stop,
		AllowSelf:        true,
		IPVersion:        peerdiscovery.IPv4,
	})
	if err != nil {
		log.WithError(err).Warn("discovery: advertise failed")
	}
	return err
}

// Scan listens for Advertise broadcasts for timeLimit and returns every
// distinct server found.
func Scan(timeLimit time.Duration) ([]Announcement, error) {
	discovered, err := peerdiscovery.Discover(peerdiscovery.Settings{
		Limit:     -1,
		TimeLimit: timeLimit,
		AllowSelf: false,
		IPVersion: peerdiscovery.IPv4,
	})
	if err != nil {
		return nil, err
	}

	var found []Announcement
	for _, d := range discovered {
		payload := string(d.Payload)
		if !strings.HasPrefix(payload, payloadPrefix) {
			continue
		}
		port, err := strconv.Atoi(strings.TrimPrefix(payload, payloadPrefix))
		if err != nil {
			log.WithField("peer", d.Address).Warn("discovery: malformed announcement payload")
			continue
		}
		found = append(found, Announcement{Host: d.Address, Port: port})
	}
	return found, nil
}
