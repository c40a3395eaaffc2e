package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/bettertest/types"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartRun(totalTests int)
	StartTest(testName string)
	CompleteTest(testName string, status types.TestStatus)
	Stop()
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(totalTests int)                               {}
func (n *noOpProgressIndicator) StartTest(testName string)                             {}
func (n *noOpProgressIndicator) CompleteTest(testName string, status types.TestStatus) {}
func (n *noOpProgressIndicator) Stop()                                                 {}

// consoleProgressIndicator periodically logs how far the run has got
type consoleProgressIndicator struct {
	logger   log.Logger
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	completedTests int
	failedTests    int
	totalTests     int
	runStartTime   time.Time

	// test name -> start time
	runningTests map[string]time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningTests: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *consoleProgressIndicator) StartRun(totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTests = totalTests
	c.completedTests = 0
	c.failedTests = 0
	c.runStartTime = time.Now()
	c.runningTests = make(map[string]time.Time)

	c.logger.Info("Starting test run", "totalTests", totalTests)
}

// StartTest tracks when a test starts running
func (c *consoleProgressIndicator) StartTest(testName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[testName] = time.Now()
	c.logger.Debug("Test started", "test", testName, "runningTests", len(c.runningTests))
}

func (c *consoleProgressIndicator) CompleteTest(testName string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testName)
	c.completedTests++
	if status == types.TestStatusFail {
		c.failedTests++
	}

	c.logger.Debug("Test completed", "test", testName, "status", status,
		"completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Info("Progress update",
		"completed", c.completedTests,
		"failed", c.failedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"elapsed", time.Since(c.runStartTime).Truncate(time.Second),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3),
	)
}

// Stop stops the progress indicator. It is safe to call more than once.
func (c *consoleProgressIndicator) Stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningTests lists the longest running tests first, limited to maxShow entries
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{
			name:     testName,
			duration: now.Sub(startTime),
		})
	}

	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}

	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}
