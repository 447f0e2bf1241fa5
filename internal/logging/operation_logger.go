/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging

import (
	"sync"
	"time"

	"github.com/gologme/log"
)

// Operation tracks a single delivery attempt.
type Operation struct {
	OpID       string
	From       string
	To         string
	StartTime  time.Time
	Milestones []Milestone
	mu         sync.Mutex
}

type Milestone struct {
	Timestamp time.Time
	Stage     string
	Message   string
}

// OperationLogger logs the start, milestones and end of delivery attempts
// keyed by an operation ID.
type OperationLogger struct {
	log        *log.Logger
	operations sync.Map // map[string]*Operation
}

func NewOperationLogger(log *log.Logger) *OperationLogger {
	return &OperationLogger{log: log}
}

func (l *OperationLogger) StartOperation(opID, from, to string) {
	op := &Operation{
		OpID:      opID,
		From:      from,
		To:        to,
		StartTime: time.Now(),
	}
	l.operations.Store(opID, op)
	l.log.Infof("[%s] START %s -> %s", opID, from, to)
}

func (l *OperationLogger) LogMilestone(opID, stage, message string) {
	value, ok := l.operations.Load(opID)
	if !ok {
		l.log.Warnf("[%s] Operation not found for milestone %s", opID, stage)
		return
	}
	op := value.(*Operation)
	op.mu.Lock()
	op.Milestones = append(op.Milestones, Milestone{
		Timestamp: time.Now(),
		Stage:     stage,
		Message:   message,
	})
	elapsed := time.Since(op.StartTime)
	op.mu.Unlock()
	l.log.Debugf("[%s] %s after %v - %s", opID, stage, elapsed.Round(time.Millisecond), message)
}

// EndOperation logs the outcome and stops tracking opID.
func (l *OperationLogger) EndOperation(opID string, err error) {
	value, ok := l.operations.LoadAndDelete(opID)
	if !ok {
		l.log.Warnf("[%s] Operation not found for end", opID)
		return
	}
	op := value.(*Operation)
	op.mu.Lock()
	elapsed := time.Since(op.StartTime).Round(time.Millisecond)
	op.mu.Unlock()
	if err != nil {
		l.log.Errorf("[%s] FAILED %s -> %s Duration=%v Error: %v", opID, op.From, op.To, elapsed, err)
		return
	}
	l.log.Infof("[%s] SUCCESS %s -> %s Duration=%v", opID, op.From, op.To, elapsed)
}

// Milestones returns a copy of the milestones recorded so far for opID.
func (l *OperationLogger) Milestones(opID string) ([]Milestone, bool) {
	value, ok := l.operations.Load(opID)
	if !ok {
		return nil, false
	}
	op := value.(*Operation)
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]Milestone(nil), op.Milestones...), true
}

func (l *OperationLogger) ActiveOperations() int {
	count := 0
	l.operations.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
