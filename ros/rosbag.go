// Package ros replays recorded ROS bags as pipeline triggers.
package ros

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read ros bag %q", filename)
	}
	return rb, nil
}

// TopicKey is the key gobag files a topic's messages under in TopicsAsJSON.
func TopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// MessagesForTopic parses every message of topic recorded between startSec and endSec,
// inclusive, into JSON lines. Zero bounds select the whole bag.
func MessagesForTopic(rb *rosbag.RosBag, topic string, startSec, endSec int64) (*bytes.Buffer, error) {
	timeFilter := func(int64) bool { return true }
	if startSec != 0 && endSec != 0 {
		timeFilter = func(sec int64) bool {
			return sec >= startSec && sec <= endSec
		}
	}
	if err := rb.ParseTopicsToJSON("", timeFilter, func(t string) bool { return t == topic }, false); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}
	msgs := rb.TopicsAsJSON[TopicKey(topic)]
	if msgs == nil || msgs.Len() == 0 {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}
	return msgs, nil
}

// DecodeStamped reads JSON lines as written by gobag, one message per line.
func DecodeStamped(r io.Reader) ([]StampedMessage, error) {
	var out []StampedMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var msg StampedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Wrapf(err, "decoding message on line %d", line)
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
