package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	Count int

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns an empty MetaData ready to be merged into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge grows the bounds to include v.
func (meta *MetaData) Merge(v r3.Vector) {
	meta.Count++
	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)
}

// Center returns the middle of the bounding box.
func (meta MetaData) Center() r3.Vector {
	if meta.Count == 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: (meta.MinX + meta.MaxX) / 2,
		Y: (meta.MinY + meta.MaxY) / 2,
		Z: (meta.MinZ + meta.MaxZ) / 2,
	}
}
