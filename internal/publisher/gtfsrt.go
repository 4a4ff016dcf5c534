package publisher

import (
	"strconv"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metro-simulator/internal/sim"
)

// VehicleFeed renders a frame as a GTFS-Realtime feed with a single
// VehiclePosition entity.
func VehicleFeed(f sim.Frame) *gtfs.FeedMessage {
	u := f.Update
	ts := uint64(u.At.Unix())

	status := gtfs.VehiclePosition_IN_TRANSIT_TO
	if u.Finished {
		status = gtfs.VehiclePosition_STOPPED_AT
	}
	vp := &gtfs.VehiclePosition{
		Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(f.Session)},
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(u.Position.Lat)),
			Longitude: proto.Float32(float32(u.Position.Lon)),
			Bearing:   proto.Float32(float32(u.Heading)),
			Odometer:  proto.Float64(u.Distance),
			Speed:     proto.Float32(float32(f.SpeedKmh / 3.6)),
		},
		CurrentStatus: status.Enum(),
		Timestamp:     proto.Uint64(ts),
	}
	if f.Neighbours.Next != 0 {
		vp.StopId = proto.String(strconv.Itoa(f.Neighbours.Next))
	}

	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
		Entity: []*gtfs.FeedEntity{{
			Id:      proto.String(f.Session),
			Vehicle: vp,
		}},
	}
}

func EncodeVehiclePosition(f sim.Frame) ([]byte, error) {
	return proto.Marshal(VehicleFeed(f))
}
