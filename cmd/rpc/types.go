package rpc

import (
	"github.com/canopy-network/aedpos/lib"
)

// =====================================================
// Query Response Types
// =====================================================

// LibResponse is the last irreversible block of the chain
type LibResponse struct {
	Height uint64 `json:"height"` // the confirmed irreversible height
	Round  uint64 `json:"round"`  // the round the height was confirmed for
}

// MiningStatusResponse is the health of the chain as seen by the round scheduler
type MiningStatusResponse struct {
	Status      string `json:"status"`    // Normal, Abnormal or Severe
	MaxBlocks   int    `json:"maxBlocks"` // the blocks a miner may produce per slot
	RoundNumber uint64 `json:"roundNumber"`
}

// TermBlocksResponse is the read only block count of every miner in a term
type TermBlocksResponse struct {
	Term   uint64            `json:"term"`
	Blocks map[string]uint64 `json:"blocks"`
}

// ConsensusParamsResponse is the protocol parameters of the node
type ConsensusParamsResponse struct {
	lib.ConsensusConfig
}

// =====================================================
// Admin Response Types
// =====================================================

type ResourceUsageResponse struct {
	Process ProcessResourceUsage `json:"process"`
	System  SystemResourceUsage  `json:"system"`
}

type ProcessResourceUsage struct {
	Name          string  `json:"name"`
	CreateTime    string  `json:"createTime"`
	ThreadCount   uint64  `json:"threadCount"`
	MemoryPercent float64 `json:"usedMemoryPercent"`
	CPUPercent    float64 `json:"usedCPUPercent"`
}

type SystemResourceUsage struct {
	TotalRAM        uint64  `json:"totalRAM"`
	AvailableRAM    uint64  `json:"availableRAM"`
	UsedRAMPercent  float64 `json:"usedRAMPercent"`
	UsedCPUPercent  float64 `json:"usedCPUPercent"`
	TotalDisk       uint64  `json:"totalDisk"`
	UsedDiskPercent float64 `json:"usedDiskPercent"`
	FreeDisk        uint64  `json:"freeDisk"`
}
