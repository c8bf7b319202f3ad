package ros

import "time"

// Stamp is a ROS time.
type Stamp struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// Time converts s to a time.Time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Secs, s.Nsecs)
}

// IsZero reports whether s is unset.
func (s Stamp) IsZero() bool {
	return s.Secs == 0 && s.Nsecs == 0
}

// StampedMessage is any message carrying a std_msgs/Header, such as the lidar sweeps that
// trigger a cycle. Only the header is decoded.
type StampedMessage struct {
	Meta Stamp
	Data struct {
		Header struct {
			Seq     uint64
			Stamp   Stamp
			FrameID string `json:"frame_id"`
		}
	}
}

// Time returns the header stamp, or the bag record time if the header is unstamped.
func (m StampedMessage) Time() time.Time {
	if m.Data.Header.Stamp.IsZero() {
		return m.Meta.Time()
	}
	return m.Data.Header.Stamp.Time()
}
