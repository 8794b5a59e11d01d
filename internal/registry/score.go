package registry

import (
	"math"
	"time"

	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Weights scale each term of the health score. Lower scores are better.
type Weights struct {
	Penalty float64
	CPU     float64
	Memory  float64
	Ping    float64
	Players float64
	Playing float64
}

var DefaultWeights = Weights{
	Penalty: 10,
	CPU:     100,
	Memory:  0.5,
	Ping:    0.1,
	Players: 2,
	Playing: 5,
}

// HealthRecord is a scored snapshot of one node.
type HealthRecord struct {
	Node        string
	Score       float64
	Penalties   float64
	CPULoad     float64
	MemoryUsage float64
	Ping        float64
	Players     int
	Playing     int
	Ready       bool
	ComputedAt  time.Time
}

// Penalties is the load penalty of a stats report. Frame deficit only
// counts when the node reported frame stats.
func Penalties(stats protocol.Stats) float64 {
	penalties := float64(stats.PlayingPlayers)
	penalties += cpuLoad(stats) * 10
	if stats.FrameStats != nil {
		penalties += math.Round(float64(stats.FrameStats.Deficit) * 2.5)
	}
	penalties += float64(stats.Players)
	return penalties
}

func cpuLoad(stats protocol.Stats) float64 {
	if stats.CPU.Cores <= 0 {
		return 0
	}
	return stats.CPU.SystemLoad / float64(stats.CPU.Cores)
}

// memoryUsage is the used share of allocated memory, in percent.
func memoryUsage(stats protocol.Stats) float64 {
	if stats.Memory.Allocated <= 0 {
		return 0
	}
	return float64(stats.Memory.Used) / float64(stats.Memory.Allocated) * 100
}

// Score computes the health record for a node from its latest stats and
// average ping.
func Score(name string, stats protocol.Stats, ping float64, w Weights) HealthRecord {
	penalties := Penalties(stats)
	cpu := cpuLoad(stats)
	mem := memoryUsage(stats)

	score := penalties*w.Penalty +
		cpu*w.CPU +
		mem*w.Memory +
		ping*w.Ping +
		float64(stats.Players)*w.Players +
		float64(stats.PlayingPlayers)*w.Playing

	return HealthRecord{
		Node:        name,
		Score:       score,
		Penalties:   penalties,
		CPULoad:     cpu,
		MemoryUsage: mem,
		Ping:        ping,
		Players:     stats.Players,
		Playing:     stats.PlayingPlayers,
	}
}
