package sshkex

import (
	"sync"
)

// Monitor counts how connections ended. Results are fed through a channel
// to a single goroutine, so connection handlers never contend on a lock.
type Monitor struct {
	states       map[HandshakeStatus]*State
	statusesChan chan *HandshakeResult
	metrics      *Metrics
	// Callback is called with each status after it has been counted.
	Callback func(HandshakeStatus)
	wg       *sync.WaitGroup
}

// State holds the counters for one HandshakeStatus.
type State struct {
	Count uint `json:"count"`
}

// GetStatuses returns the per-status counters. It must only be called
// after Stop.
func (m *Monitor) GetStatuses() map[HandshakeStatus]*State {
	return m.states
}

// Record queues result for counting. metrics, when set, are updated
// immediately. A nil Monitor ignores results.
func (m *Monitor) Record(result *HandshakeResult) {
	if m == nil {
		return
	}
	m.metrics.observe(result)
	m.statusesChan <- result
}

func (m *Monitor) connectionOpened() {
	if m != nil {
		m.metrics.connectionOpened()
	}
}

func (m *Monitor) connectionClosed() {
	if m != nil {
		m.metrics.connectionClosed()
	}
}

// Stop waits until every recorded result has been counted.
func (m *Monitor) Stop() {
	close(m.statusesChan)
	m.wg.Wait()
}

// MakeMonitor returns a Monitor whose channel buffers bufferSize results.
// wg is marked done when the monitor stops.
func MakeMonitor(bufferSize int, metrics *Metrics, wg *sync.WaitGroup) *Monitor {
	m := new(Monitor)
	m.statusesChan = make(chan *HandshakeResult, bufferSize)
	m.states = make(map[HandshakeStatus]*State, 10)
	m.metrics = metrics
	m.wg = wg
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range m.statusesChan {
			if m.states[r.Status] == nil {
				m.states[r.Status] = new(State)
			}
			m.states[r.Status].Count++
			if m.Callback != nil {
				m.Callback(r.Status)
			}
		}
	}()
	return m
}
