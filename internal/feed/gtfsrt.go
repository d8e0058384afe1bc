// Package feed renders fleet snapshots as GTFS-Realtime VehiclePositions.
package feed

import (
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"bus-tracker/internal/fleet"
)

const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"

	gtfsRealtimeVersion = "2.0"
)

// Build converts a snapshot into a FULL_DATASET feed. Only active vehicles
// are included.
func Build(snap *fleet.Snapshot) *gtfs.FeedMessage {
	ts := snapshotTime(snap)
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
	}
	for _, v := range snap.Vehicles {
		if !v.Active() {
			continue
		}
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id:      proto.String(v.ID),
			Vehicle: vehiclePosition(v, ts),
		})
	}
	return msg
}

func vehiclePosition(v fleet.Vehicle, ts uint64) *gtfs.VehiclePosition {
	vp := &gtfs.VehiclePosition{
		Trip: &gtfs.TripDescriptor{
			RouteId: proto.String(v.RouteID),
		},
		Vehicle: &gtfs.VehicleDescriptor{
			Id:    proto.String(v.ID),
			Label: proto.String(label(v)),
		},
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(v.Lat)),
			Longitude: proto.Float32(float32(v.Lng)),
			Bearing:   proto.Float32(float32(v.Heading)),
			Speed:     proto.Float32(float32(v.Speed / 3.6)), // km/h to m/s
		},
		Timestamp: proto.Uint64(ts),
	}
	if occ, ok := occupancy(v.Passengers, v.Capacity); ok {
		vp.OccupancyStatus = occ.Enum()
	}
	return vp
}

func label(v fleet.Vehicle) string {
	if v.RouteLabel == "" {
		return v.RouteID
	}
	return v.RouteID + " " + v.RouteLabel
}

// occupancy buckets the load factor. It reports false when capacity is
// unknown.
func occupancy(passengers, capacity int) (gtfs.VehiclePosition_OccupancyStatus, bool) {
	if capacity <= 0 {
		return 0, false
	}
	load := float64(passengers) / float64(capacity)
	switch {
	case passengers <= 0:
		return gtfs.VehiclePosition_EMPTY, true
	case load < 0.5:
		return gtfs.VehiclePosition_MANY_SEATS_AVAILABLE, true
	case load < 0.8:
		return gtfs.VehiclePosition_FEW_SEATS_AVAILABLE, true
	case load < 0.95:
		return gtfs.VehiclePosition_STANDING_ROOM_ONLY, true
	case load < 1:
		return gtfs.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY, true
	default:
		return gtfs.VehiclePosition_FULL, true
	}
}

func snapshotTime(snap *fleet.Snapshot) uint64 {
	t := snap.TakenAt
	if t.IsZero() {
		t = time.Now()
	}
	return uint64(t.Unix())
}

// Encode renders the feed for snap as protobuf, or as protojson when asJSON
// is set, and returns the matching content type.
func Encode(snap *fleet.Snapshot, asJSON bool) ([]byte, string, error) {
	msg := Build(snap)
	if asJSON {
		b, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
		return b, ContentTypeJSON, err
	}
	b, err := proto.Marshal(msg)
	return b, ContentTypeProtobuf, err
}
