package scene

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunResult() *RunResult {
	pose := IdentityPose()
	pose.M[3] = 1.5
	return &RunResult{
		Views: []View{{ID: 0}, {ID: 1}},
		Records: []PoseRecord{
			{Label: "img0", Focal: 300, Pose: IdentityPose()},
			{Label: "img1", Focal: 310, Pose: pose},
		},
		Loss:       0.002,
		MatchCount: 42,
		ExportPath: "poses.csv",
	}
}

func TestPublisher_PublishRun(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	pub := NewPublisher(client, "scans")

	require.NoError(t, pub.PublishRun(testRunResult()))

	msgs := client.PublishedMessages()
	require.Len(t, msgs, 3)

	assert.Equal(t, "scans/poses/img0", msgs[0].Topic)
	assert.Equal(t, "scans/poses/img1", msgs[1].Topic)
	assert.Equal(t, "scans/run", msgs[2].Topic)

	for _, m := range msgs {
		assert.Equal(t, byte(1), m.QoS)
		assert.True(t, m.Retain)
	}

	var pose posePayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &pose))
	assert.Equal(t, "img1", pose.Label)
	assert.Equal(t, 310.0, pose.Focal)
	parsed, err := ParsePose(pose.Pose)
	require.NoError(t, err)
	assert.Equal(t, 1.5, parsed.M[3])
	assert.NotZero(t, pose.Timestamp)

	var run runPayload
	require.NoError(t, json.Unmarshal(msgs[2].Payload, &run))
	assert.Equal(t, 2, run.Views)
	assert.Equal(t, 0.002, run.Loss)
	assert.Equal(t, 42, run.Matches)
	assert.Equal(t, "poses.csv", run.ExportPath)
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	pub := NewPublisher(client, "")

	require.NoError(t, pub.PublishRun(testRunResult()))

	msgs := client.PublishedMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, DefaultPublishPrefix+"/poses/img0", msgs[0].Topic)
}

func TestPublisher_NotConnected(t *testing.T) {
	pub := NewPublisher(NewMockClient(), "scans")
	assert.Error(t, pub.PublishRun(testRunResult()))
}

func TestPublisher_NilClient(t *testing.T) {
	pub := NewPublisher(nil, "scans")
	assert.Error(t, pub.PublishRun(testRunResult()))
}

func TestPublisher_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(errors.New("broker rejected"))
	pub := NewPublisher(client, "scans")

	err := pub.PublishRun(testRunResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker rejected")
}

func TestPublisher_Close(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	pub := NewPublisher(client, "scans")

	pub.Close()
	assert.False(t, client.IsConnected())
}
