// Package sender pushes metric values to the monitoring server trapper port.
package sender

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"zac/internal/clock"
	"zac/internal/config"
)

const (
	headerMagic     = "ZBXD"
	headerFlags     = byte(0x01)
	headerSize      = len(headerMagic) + 1 + 8
	maxPayloadSize  = 16 << 20
	defaultTimeout  = 10 * time.Second
	requestKind     = "sender data"
	successResponse = "success"
)

var (
	// ErrNoMetrics is returned when Send is called without values.
	ErrNoMetrics = errors.New("sender: no metrics")
	// ErrBadHeader is returned when a reply does not start with the protocol header.
	ErrBadHeader = errors.New("sender: bad reply header")
	// ErrRejected is returned when the server answers with a non-success response.
	ErrRejected = errors.New("sender: request rejected")
)

// Metric is one value for an item identified by host and key.
type Metric struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock,omitempty"`
}

// Response is the parsed server reply.
type Response struct {
	Response  string  `json:"response"`
	Info      string  `json:"info"`
	Processed int     `json:"-"`
	Failed    int     `json:"-"`
	Total     int     `json:"-"`
	Spent     float64 `json:"-"`
}

type request struct {
	Request string   `json:"request"`
	Data    []Metric `json:"data"`
	Clock   int64    `json:"clock,omitempty"`
}

// Sender opens one TCP connection per Send call.
type Sender struct {
	address string
	timeout time.Duration
	clock   clock.Clock
	dialer  net.Dialer
}

// New creates a sender for the configured trapper address.
// Params: sender config section and clock used to stamp metrics.
// Returns: sender ready for Send.
func New(cfg config.SenderConfig, clk clock.Clock) *Sender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sender{
		address: strings.TrimSpace(cfg.Address),
		timeout: timeout,
		clock:   clk,
	}
}

// Address returns the configured trapper address.
func (s *Sender) Address() string {
	return s.address
}

// Send pushes metrics in one request and waits for the reply.
// Params: context bounding the exchange and metrics; zero Clock is stamped with now.
// Returns: parsed reply; ErrRejected when the server did not answer success.
func (s *Sender) Send(ctx context.Context, metrics ...Metric) (Response, error) {
	if len(metrics) == 0 {
		return Response{}, ErrNoMetrics
	}
	now := s.clock.Now()
	stamped := make([]Metric, len(metrics))
	for idx, metric := range metrics {
		if metric.Clock == 0 {
			metric.Clock = now.Unix()
		}
		stamped[idx] = metric
	}
	payload, err := json.Marshal(request{Request: requestKind, Data: stamped, Clock: now.Unix()})
	if err != nil {
		return Response{}, fmt.Errorf("encode sender request: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.address)
	if err != nil {
		return Response{}, fmt.Errorf("dial trapper %s: %w", s.address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set trapper deadline: %w", err)
	}
	// Unblock pending I/O when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(encodeFrame(payload)); err != nil {
		return Response{}, fmt.Errorf("write sender request: %w", contextOr(ctx, err))
	}
	body, err := readFrame(conn)
	if err != nil {
		return Response{}, fmt.Errorf("read sender reply: %w", contextOr(ctx, err))
	}
	return decodeResponse(body)
}

// encodeFrame prefixes payload with magic, flags and little-endian length.
func encodeFrame(payload []byte) []byte {
	frame := make([]byte, headerSize, headerSize+len(payload))
	copy(frame, headerMagic)
	frame[len(headerMagic)] = headerFlags
	binary.LittleEndian.PutUint64(frame[len(headerMagic)+1:], uint64(len(payload)))
	return append(frame, payload...)
}

// readFrame reads one framed payload.
// Params: reader positioned at a frame header.
// Returns: payload bytes or header/size error.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header[:len(headerMagic)], []byte(headerMagic)) || header[len(headerMagic)] != headerFlags {
		return nil, fmt.Errorf("%w: % x", ErrBadHeader, header[:len(headerMagic)+1])
	}
	size := binary.LittleEndian.Uint64(header[len(headerMagic)+1:])
	if size > maxPayloadSize {
		return nil, fmt.Errorf("reply payload of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeResponse(body []byte) (Response, error) {
	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{}, fmt.Errorf("decode sender reply: %w", err)
	}
	if response.Response != successResponse {
		return response, fmt.Errorf("%w: response=%q info=%q", ErrRejected, response.Response, response.Info)
	}
	parseInfo(&response)
	return response, nil
}

// parseInfo fills counters from "processed: 1; failed: 0; total: 1; seconds spent: 0.000055".
// Unknown or malformed fields are left at zero.
func parseInfo(response *Response) {
	for _, field := range strings.Split(response.Info, ";") {
		name, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(name) {
		case "processed":
			response.Processed, _ = strconv.Atoi(value)
		case "failed":
			response.Failed, _ = strconv.Atoi(value)
		case "total":
			response.Total, _ = strconv.Atoi(value)
		case "seconds spent":
			response.Spent, _ = strconv.ParseFloat(value, 64)
		}
	}
}

func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
