package rpc

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/canopy-network/aedpos/lib"
	"github.com/julienschmidt/httprouter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage responds with the resource usage of the node process and its host
func (s *Server) ResourceUsage(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	pm, err := mem.VirtualMemory() // os memory
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	cp, err := cpu.Percent(0, false) // os cpu percent
	if err != nil || len(cp) == 0 {
		write(w, err, http.StatusInternalServerError)
		return
	}
	d, err := disk.Usage(s.diskPath()) // disk of the data directory
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	name, err := p.Name()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	numThreads, err := p.NumThreads()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	memPercent, err := p.MemoryPercent()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	created, err := p.CreateTime()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	write(w, ResourceUsageResponse{
		Process: ProcessResourceUsage{
			Name:          name,
			CreateTime:    time.UnixMilli(created).UTC().Format(time.RFC822),
			ThreadCount:   uint64(numThreads),
			MemoryPercent: float64(memPercent),
			CPUPercent:    cpuPercent,
		},
		System: SystemResourceUsage{
			TotalRAM:        pm.Total,
			AvailableRAM:    pm.Available,
			UsedRAMPercent:  pm.UsedPercent,
			UsedCPUPercent:  cp[0],
			TotalDisk:       d.Total,
			UsedDiskPercent: d.UsedPercent,
			FreeDisk:        d.Free,
		},
	}, http.StatusOK)
}

// Config responds with the configuration the node runs with
func (s *Server) Config(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, s.config, http.StatusOK)
}

// Logs writes the node log file, latest line first
func (s *Server) Logs(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	// Read the entire contents of the log file and split by newlines
	f, err := os.ReadFile(filepath.Join(s.config.DataDirPath, lib.LogDirectory, lib.LogFileName))
	if err != nil {
		write(w, lib.ErrReadFile(err), http.StatusNotFound)
		return
	}
	split := bytes.Split(f, []byte("\n"))
	flipped := make([]byte, 0, len(f)+1)
	// Iterate over the lines in reverse order
	for i := len(split) - 1; i >= 0; i-- {
		flipped = append(append(flipped, split[i]...), '\n')
	}
	if _, err = w.Write(flipped); err != nil {
		s.logger.Error(err.Error())
	}
}

// diskPath() returns the directory whose disk is reported
func (s *Server) diskPath() string {
	if s.config.DataDirPath == "" {
		return "/"
	}
	return s.config.DataDirPath
}
