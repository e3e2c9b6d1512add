package dispatch

import (
	"sync/atomic"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Matrix is the CompletionStatus table, indexed by (prompt, provider).
// Every cell is written only by the task that owns it, through
// compare-and-swap, so its state can only move forward.
type Matrix struct {
	prompts   int
	providers int
	cells     []atomic.Uint32
}

// NewMatrix creates a matrix with every cell pending.
func NewMatrix(prompts, providers int) *Matrix {
	return &Matrix{
		prompts:   prompts,
		providers: providers,
		cells:     make([]atomic.Uint32, prompts*providers),
	}
}

// Size returns the number of prompts and providers.
func (m *Matrix) Size() (prompts, providers int) {
	return m.prompts, m.providers
}

// Len returns the number of cells.
func (m *Matrix) Len() int {
	return len(m.cells)
}

// Index flattens a cell address.
func (m *Matrix) Index(c model.Cell) int {
	return c.Prompt*m.providers + c.Provider
}

// Status returns the current state of a cell.
func (m *Matrix) Status(c model.Cell) model.CellStatus {
	return model.CellStatus(m.cells[m.Index(c)].Load())
}

// Start moves a cell from pending to running.
func (m *Matrix) Start(c model.Cell) bool {
	return m.cells[m.Index(c)].CompareAndSwap(uint32(model.CellPending), uint32(model.CellRunning))
}

// Finish moves a running cell to completed or failed.
func (m *Matrix) Finish(c model.Cell, to model.CellStatus) bool {
	if !to.Terminal() {
		return false
	}
	return m.cells[m.Index(c)].CompareAndSwap(uint32(model.CellRunning), uint32(to))
}

// Counts tallies cells by state.
func (m *Matrix) Counts() (pending, running, completed, failed int) {
	for i := range m.cells {
		switch model.CellStatus(m.cells[i].Load()) {
		case model.CellPending:
			pending++
		case model.CellRunning:
			running++
		case model.CellCompleted:
			completed++
		case model.CellFailed:
			failed++
		}
	}
	return pending, running, completed, failed
}
