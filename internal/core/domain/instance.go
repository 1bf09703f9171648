// Package domain defines the core domain models for ZoneMesh.
package domain

import "fmt"

// ZoneID identifies a zone definition.
type ZoneID uint32

// InstanceID packs a (zone id, offset) pair into one value.
// The zone occupies the high 32 bits.
type InstanceID uint64

// NewInstanceID packs zone and offset.
func NewInstanceID(zone ZoneID, offset uint32) InstanceID {
	return InstanceID(uint64(zone)<<32 | uint64(offset))
}

// Zone returns the zone id part.
func (id InstanceID) Zone() ZoneID {
	return ZoneID(uint64(id) >> 32)
}

// Offset returns the per-zone offset part.
func (id InstanceID) Offset() uint32 {
	return uint32(uint64(id))
}

func (id InstanceID) String() string {
	return fmt.Sprintf("%d:%d", id.Zone(), id.Offset())
}

// InstanceInfo is the directory entry for a running zone instance.
//
// Open is the number of unreserved places; it stays within [0, Capacity].
type InstanceInfo struct {
	ID       InstanceID `json:"id"`
	Owner    string     `json:"owner"`
	Region   string     `json:"region"`
	Open     int32      `json:"open"`
	Capacity int32      `json:"capacity"`
}

// Take consumes one place. It reports false when the instance is full.
func (i *InstanceInfo) Take() bool {
	if i.Open <= 0 {
		return false
	}
	i.Open--
	return true
}

// Give returns one place, never exceeding Capacity.
func (i *InstanceInfo) Give() bool {
	if i.Open >= i.Capacity {
		return false
	}
	i.Open++
	return true
}
