// Package unlock drives the cabinet lock controller. The controller is an
// ESP32 reachable over the local network, with a direct serial line as the
// fallback path when the network is down.
package unlock

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.bug.st/serial"
)

// Channel identifies which transport carried a controller command.
type Channel string

const (
	ChannelNetwork Channel = "NETWORK"
	ChannelSerial  Channel = "SERIAL"
	ChannelNone    Channel = "NONE"
)

const (
	networkTimeout = 5 * time.Second
	statusTimeout  = 3 * time.Second
	serialBaud     = 115200
	serialReadWait = 5 * time.Second
	// serialSettle is how long the line is left idle after open before
	// writing. The controller firmware needs the gap even without a reset.
	serialSettle = 500 * time.Millisecond
)

// ErrControllerUnreachable is returned when neither transport reached the
// controller.
var ErrControllerUnreachable = errors.New("cabinet controller unreachable")

// Command is an unlock request sent to the controller.
type Command struct {
	Action    string `json:"action"`
	Subject   string `json:"subject,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Ack is the controller's reply.
type Ack struct {
	Channel Channel `json:"channel"`
	Opened  bool    `json:"opened"`
	Detail  string  `json:"detail,omitempty"`
}

// Status reports transport reachability for the health endpoint.
type Status struct {
	NetworkOK  bool   `json:"network_ok"`
	SerialPort string `json:"serial_port,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Gateway sends unlock commands, preferring the network path and falling
// back to serial. Network calls go through a circuit breaker so a dead
// controller does not stall every checkout for the full HTTP timeout.
type Gateway struct {
	addr       string
	serialPort string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Entry

	// The serial line is a single shared device; one command at a time.
	serialMu sync.Mutex
	openPort func(name string, mode *serial.Mode) (serial.Port, error)
	settle   time.Duration
}

// NewGateway creates a gateway for the controller at addr (for example
// "http://192.168.4.1") with serialPort (for example "/dev/ttyUSB0") as
// the fallback line. Either may be empty to disable that transport.
func NewGateway(addr, serialPort string, log *logrus.Entry) *Gateway {
	settings := gobreaker.Settings{
		Name:    "CabinetController",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("controller circuit state changed")
		},
	}
	return &Gateway{
		addr:       strings.TrimRight(addr, "/"),
		serialPort: serialPort,
		client:     &http.Client{Timeout: networkTimeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		log:        log,
		openPort:   serial.Open,
		settle:     serialSettle,
	}
}

// Unlock asks the controller to open the cabinet. The network path is
// tried first; any network failure falls through to the serial line.
func (g *Gateway) Unlock(ctx context.Context, subject, reason string) (Ack, error) {
	cmd := Command{
		Action:    "unlock",
		Subject:   subject,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "medcab",
	}

	if g.addr != "" {
		ack, err := g.unlockNetwork(ctx, cmd)
		if err == nil {
			return ack, nil
		}
		g.log.WithError(err).Warn("network unlock failed, trying serial")
	}

	if g.serialPort != "" {
		ack, err := g.unlockSerial(cmd)
		if err == nil {
			return ack, nil
		}
		g.log.WithError(err).Error("serial unlock failed")
	}

	return Ack{Channel: ChannelNone}, ErrControllerUnreachable
}

func (g *Gateway) unlockNetwork(ctx context.Context, cmd Command) (Ack, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to encode command: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.addr+"/unlock", strings.NewReader(string(body)))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("controller request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("controller returned status %d", resp.StatusCode)
		}

		var reply struct {
			Success  bool   `json:"success"`
			Unlocked bool   `json:"unlocked"`
			Message  string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return nil, fmt.Errorf("failed to decode controller reply: %w", err)
		}
		if !reply.Success && !reply.Unlocked {
			return nil, fmt.Errorf("controller refused: %s", reply.Message)
		}
		return Ack{Channel: ChannelNetwork, Opened: true, Detail: reply.Message}, nil
	})
	if err != nil {
		return Ack{}, err
	}
	return result.(Ack), nil
}

// unlockSerial writes the command as one JSON line and reads one line
// back. Controller firmware sometimes prints plain status text instead of
// JSON; a non-JSON reply still counts as success since the write itself
// reached the device.
func (g *Gateway) unlockSerial(cmd Command) (Ack, error) {
	g.serialMu.Lock()
	defer g.serialMu.Unlock()

	// DTR and RTS stay low on open; raising them resets the controller.
	mode := &serial.Mode{
		BaudRate:          serialBaud,
		InitialStatusBits: &serial.ModemOutputBits{RTS: false, DTR: false},
	}
	port, err := g.openPort(g.serialPort, mode)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to open serial port %s: %w", g.serialPort, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(serialReadWait); err != nil {
		return Ack{}, fmt.Errorf("failed to set serial timeout: %w", err)
	}

	time.Sleep(g.settle)
	if err := port.ResetInputBuffer(); err != nil {
		return Ack{}, fmt.Errorf("failed to flush serial input: %w", err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to encode command: %w", err)
	}
	if _, err := port.Write(append(payload, '\n')); err != nil {
		return Ack{}, fmt.Errorf("failed to write to serial port: %w", err)
	}

	line, err := bufio.NewReader(port).ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return Ack{}, fmt.Errorf("no reply from serial port: %w", err)
	}

	var reply struct {
		Success  *bool  `json:"success"`
		Unlocked *bool  `json:"unlocked"`
		Message  string `json:"message"`
	}
	if jsonErr := json.Unmarshal([]byte(line), &reply); jsonErr != nil {
		return Ack{Channel: ChannelSerial, Opened: true, Detail: line}, nil
	}
	// A JSON reply that omits both flags is still an ack; only an
	// explicit false is a refusal.
	opened := true
	if reply.Success != nil {
		opened = *reply.Success
	} else if reply.Unlocked != nil {
		opened = *reply.Unlocked
	}
	if !opened {
		return Ack{}, fmt.Errorf("controller refused: %s", reply.Message)
	}
	return Ack{Channel: ChannelSerial, Opened: true, Detail: reply.Message}, nil
}

// Probe checks whether the controller answers on the network path. It
// never touches the serial line, which may be in use by an unlock.
func (g *Gateway) Probe(ctx context.Context) Status {
	st := Status{SerialPort: g.serialPort, Address: g.addr}
	if g.addr == "" {
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.addr+"/status", nil)
	if err != nil {
		return st
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return st
	}
	defer resp.Body.Close()
	st.NetworkOK = resp.StatusCode == http.StatusOK
	return st
}
