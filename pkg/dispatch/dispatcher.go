// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispatch runs topic publish/subscribe over a link.
//
// A Dispatcher owns three goroutines. The reader polls the link and hands
// chunks to the dispatch goroutine, which frames, decodes, stores and
// dispatches each message in arrival order, then purges it. The writer
// serializes publishes onto the link.
//
// Subscriber callbacks run on the dispatch goroutine, one at a time, in
// subscription order. A message is visible to GetData only while its
// callbacks run; a topic with no subscribers is dropped without being stored.
// Callbacks must not block, and must not call Close.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/frame"
	"github.com/Thermoquad/serialdispatch/pkg/link"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/rs/zerolog"
)

// inboundDepth bounds the chunks queued between reader and dispatcher
const inboundDepth = 64

// Callback is notified that a new value for topic is available via GetData
type Callback func(topic string)

// SubscriptionID identifies one Subscribe call
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Callback
}

type writeRequest struct {
	frame  []byte
	result chan error
}

// Dispatcher exchanges topic messages with a remote device over a link
type Dispatcher struct {
	link    link.Link
	cfg     Config
	log     zerolog.Logger
	decoder *frame.Decoder

	mu          sync.Mutex
	data        map[string]*topic.Message
	subscribers map[string][]subscription
	nextID      SubscriptionID

	inbound  chan []byte
	outbound chan writeRequest

	stats     counters
	statsMu   sync.Mutex
	startTime time.Time
	frameBase frame.Counters

	done      chan struct{}
	linkDown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// New starts a dispatcher on l. The dispatcher owns l and closes it on Close.
func New(l link.Link, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		link:        l,
		cfg:         cfg,
		log:         cfg.Logger.With().Str("component", "dispatch").Logger(),
		decoder:     frame.NewDecoderSize(cfg.MaxBuffer),
		data:        make(map[string]*topic.Message),
		subscribers: make(map[string][]subscription),
		inbound:     make(chan []byte, inboundDepth),
		outbound:    make(chan writeRequest),
		startTime:   time.Now(),
		done:        make(chan struct{}),
		linkDown:    make(chan struct{}),
	}

	d.wg.Add(3)
	go d.readLoop()
	go d.dispatchLoop()
	go d.writeLoop()

	return d
}

// Subscribe registers fn for topic. Callbacks for a topic run in the order
// they were subscribed.
func (d *Dispatcher) Subscribe(name string, fn Callback) (SubscriptionID, error) {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, name)
	}
	if fn == nil {
		return 0, ErrNilCallback
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subscribers[name] = append(d.subscribers[name], subscription{id: id, fn: fn})

	d.log.Debug().Str("topic", name).Uint64("id", uint64(id)).Msg("subscribed")
	return id, nil
}

// Unsubscribe removes a subscription. The topic entry is dropped with its
// last subscriber.
func (d *Dispatcher) Unsubscribe(name string, id SubscriptionID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subscribers[name]
	i := slices.IndexFunc(subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return fmt.Errorf("%w: topic %q id %d", ErrNotSubscribed, name, id)
	}

	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(d.subscribers, name)
	} else {
		d.subscribers[name] = subs
	}

	d.log.Debug().Str("topic", name).Uint64("id", uint64(id)).Msg("unsubscribed")
	return nil
}

// Topics returns the topics that currently have subscribers, sorted
func (d *Dispatcher) Topics() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	topics := make([]string, 0, len(d.subscribers))
	for name := range d.subscribers {
		topics = append(topics, name)
	}
	slices.Sort(topics)
	return topics
}

// GetData returns the value currently stored for topic
func (d *Dispatcher) GetData(name string) (*topic.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoData, name)
	}
	return m, nil
}

// Publish encodes and frames a topic message, writes it to the link and
// returns the framed bytes. It is safe to call from a callback.
func (d *Dispatcher) Publish(name string, columns ...topic.Column) ([]byte, error) {
	return d.PublishContext(context.Background(), name, columns...)
}

// PublishContext is Publish with cancellation while waiting for the writer
func (d *Dispatcher) PublishContext(ctx context.Context, name string, columns ...topic.Column) ([]byte, error) {
	payload, err := topic.Encode(name, columns...)
	if err != nil {
		return nil, err
	}
	return d.WriteFrame(ctx, frame.Encode(payload))
}

// WriteFrame writes an already framed message through the writer goroutine
func (d *Dispatcher) WriteFrame(ctx context.Context, framed []byte) ([]byte, error) {
	req := writeRequest{frame: framed, result: make(chan error, 1)}

	select {
	case d.outbound <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrClosed
	}

	select {
	case err := <-req.result:
		if err != nil {
			return nil, fmt.Errorf("dispatch: write failed: %w", err)
		}
		return framed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrClosed
	}
}

// Statistics returns a snapshot of the counters since start or the last
// ResetStatistics
func (d *Dispatcher) Statistics() Statistics {
	d.statsMu.Lock()
	start, base := d.startTime, d.frameBase
	d.statsMu.Unlock()

	return newStatistics(start, subCounters(d.decoder.Counters(), base), &d.stats)
}

// ResetStatistics zeroes all counters
func (d *Dispatcher) ResetStatistics() {
	d.statsMu.Lock()
	d.startTime = time.Now()
	d.frameBase = d.decoder.Counters()
	d.statsMu.Unlock()
	d.stats.reset()
}

// Done is closed when the link fails or the dispatcher is closed
func (d *Dispatcher) Done() <-chan struct{} {
	return d.linkDown
}

// Err returns the link error that stopped the reader, if any
func (d *Dispatcher) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Close stops all goroutines, closes the link and waits for the goroutines
// to exit. It is idempotent.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.link.Close()
		d.wg.Wait()
		d.markLinkDown()
		d.log.Debug().Msg("closed")
	})
	return err
}

func (d *Dispatcher) stopping() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) markLinkDown() {
	select {
	case <-d.linkDown:
	default:
		close(d.linkDown)
	}
}

// readLoop polls the link, sleeping PollInterval after an empty read
func (d *Dispatcher) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, d.cfg.ReadSize)
	for !d.stopping() {
		n, err := d.link.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case d.inbound <- chunk:
			case <-d.done:
				return
			}
		}

		if err != nil {
			if d.stopping() {
				return
			}
			d.errMu.Lock()
			d.err = err
			d.errMu.Unlock()
			if errors.Is(err, link.ErrConnectionClosed) {
				d.log.Info().Msg("link closed")
			} else {
				d.log.Error().Err(err).Msg("link read failed")
			}
			// Close closes linkDown only after this goroutine exits
			close(d.linkDown)
			return
		}

		if n == 0 {
			select {
			case <-time.After(d.cfg.PollInterval):
			case <-d.done:
				return
			}
		}
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	for {
		select {
		case chunk := <-d.inbound:
			d.ingest(chunk)
		case <-d.done:
			return
		}
	}
}

// ingest feeds a chunk to the frame decoder and handles every complete
// payload in order
func (d *Dispatcher) ingest(chunk []byte) {
	before := d.decoder.Counters()
	d.decoder.Write(chunk)

	for payload := range d.decoder.Payloads() {
		if d.stopping() {
			return
		}

		m, err := topic.Decode(payload)
		if err != nil {
			d.stats.decodeErrors.Add(1)
			d.log.Warn().Err(err).Str("payload", topic.HexDump(payload)).Msg("dropping undecodable message")
			if d.cfg.OnError != nil {
				d.cfg.OnError(err)
			}
			continue
		}

		m.Received = time.Now()
		d.stats.messages.Add(1)
		d.deliver(m)
	}

	if after := d.decoder.Counters(); after.ChecksumErrors > before.ChecksumErrors || after.Malformed > before.Malformed {
		d.log.Debug().
			Uint64("checksum_errors", after.ChecksumErrors-before.ChecksumErrors).
			Uint64("malformed", after.Malformed-before.Malformed).
			Msg("dropped corrupt frames")
	}
}

// deliver stores m, runs its topic's callbacks and purges it
func (d *Dispatcher) deliver(m *topic.Message) {
	if d.cfg.OnMessage != nil {
		d.cfg.OnMessage(m)
	}

	d.mu.Lock()
	subs := d.subscribers[m.Topic]
	if len(subs) == 0 {
		d.mu.Unlock()
		d.stats.unsubscribed.Add(1)
		d.log.Trace().Str("topic", m.Topic).Msg("no subscribers, discarding")
		return
	}
	callbacks := slices.Clone(subs)
	d.data[m.Topic] = m
	d.mu.Unlock()

	for _, s := range callbacks {
		d.invoke(m.Topic, s)
	}

	d.mu.Lock()
	delete(d.data, m.Topic)
	d.mu.Unlock()
}

func (d *Dispatcher) invoke(name string, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.callbackPanics.Add(1)
			d.log.Error().
				Str("topic", name).
				Uint64("id", uint64(s.id)).
				Interface("panic", r).
				Msg("subscriber callback panicked")
		}
	}()

	d.stats.dispatched.Add(1)
	s.fn(name)
}

func (d *Dispatcher) writeLoop() {
	defer d.wg.Done()

	for {
		select {
		case req := <-d.outbound:
			_, err := d.link.Write(req.frame)
			if err != nil {
				d.stats.writeErrors.Add(1)
				d.log.Error().Err(err).Msg("link write failed")
			} else {
				d.stats.published.Add(1)
			}
			req.result <- err
		case <-d.done:
			return
		}
	}
}

func subCounters(c, base frame.Counters) frame.Counters {
	return frame.Counters{
		Frames:         c.Frames - base.Frames,
		Valid:          c.Valid - base.Valid,
		ChecksumErrors: c.ChecksumErrors - base.ChecksumErrors,
		Malformed:      c.Malformed - base.Malformed,
		DiscardedBytes: c.DiscardedBytes - base.DiscardedBytes,
		Overflows:      c.Overflows - base.Overflows,
	}
}
