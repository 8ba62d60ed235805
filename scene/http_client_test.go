package scene

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// flatWireView builds a valid wire view with every 3D point set to (x, y, 1)
// and the full mask trusted.
func flatWireView(id, w, h int) wireView {
	view := View{ID: id, Path: "img.png", Width: w, Height: h}
	pose := make([]float64, 16)
	identity := IdentityPose()
	copy(pose, identity.M[:])

	points := make([]float64, 0, w*h*3)
	mask := make([]bool, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			points = append(points, float64(x), float64(y), 1)
			mask = append(mask, true)
		}
	}
	return wireView{View: view, Pose: pose, Focal: 400, Points: points, Mask: mask}
}

func TestInferenceClient_Infer(t *testing.T) {
	var gotReq inferRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/infer", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := inferResponse{Predictions: []PairPrediction{
			{Pair: ViewPair{A: 0, B: 1}, Payload: json.RawMessage(`{"opaque":true}`)},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL)
	views := []View{{ID: 0, Path: "a.png"}, {ID: 1, Path: "b.png"}}
	pairs := []ViewPair{{A: 0, B: 1}, {A: 1, B: 0}}

	preds, err := client.Infer(context.Background(), views, pairs, InferOptions{Device: DeviceCPU, ImageSize: 512, BatchSize: 1})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, ViewPair{A: 0, B: 1}, preds[0].Pair)

	assert.Equal(t, views, gotReq.Views)
	assert.Equal(t, pairs, gotReq.Pairs)
	assert.Equal(t, 512, gotReq.Options.ImageSize)
}

func TestInferenceClient_Align(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/align", r.URL.Path)

		resp := alignResponse{
			Views: []wireView{flatWireView(0, 3, 2), flatWireView(1, 3, 2)},
			Loss:  0.004,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL)
	result, err := client.Align(context.Background(), []PairPrediction{{Pair: ViewPair{A: 0, B: 1}}}, AlignOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0.004, result.Loss)
	assert.Equal(t, []int{0, 1}, result.ViewIDs())

	rec, ok := result.Record(0)
	require.True(t, ok)
	assert.Equal(t, 400.0, rec.Focal)
	assert.Equal(t, IdentityPose(), rec.Pose)
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: 1}, rec.Points.At(2, 1))
	assert.Equal(t, 6, rec.Mask.Count())
}

func TestInferenceClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := inferResponse{Predictions: []PairPrediction{{Pair: ViewPair{A: 0, B: 1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, WithBaseBackoff(time.Millisecond))
	_, err := client.Infer(context.Background(), []View{{ID: 0}}, []ViewPair{{A: 0, B: 1}}, InferOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInferenceClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	_, err := client.Infer(context.Background(), []View{{ID: 0}}, []ViewPair{{A: 0, B: 1}}, InferOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
	assert.Equal(t, int32(2), calls.Load())
}

func TestInferenceClient_MalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, WithBaseBackoff(time.Millisecond))
	_, err := client.Infer(context.Background(), []View{{ID: 0}}, []ViewPair{{A: 0, B: 1}}, InferOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInferenceClient_AlignRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*wireView)
	}{
		{"short pose", func(wv *wireView) { wv.Pose = wv.Pose[:12] }},
		{"truncated points", func(wv *wireView) { wv.Points = wv.Points[:len(wv.Points)-3] }},
		{"short mask", func(wv *wireView) { wv.Mask = wv.Mask[:len(wv.Mask)-1] }},
		{"zero width", func(wv *wireView) { wv.View.Width = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wv := flatWireView(0, 2, 2)
			tc.mutate(&wv)

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewEncoder(w).Encode(alignResponse{Views: []wireView{wv}}))
			}))
			defer server.Close()

			client := NewInferenceClient(server.URL)
			_, err := client.Align(context.Background(), nil, AlignOptions{})
			assert.Error(t, err)
		})
	}
}

func TestInferenceClient_AlignRejectsDuplicateViews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := alignResponse{Views: []wireView{flatWireView(0, 2, 2), flatWireView(0, 2, 2)}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL)
	_, err := client.Align(context.Background(), nil, AlignOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate view id")
}

func TestInferenceClient_EmptyURL(t *testing.T) {
	client := NewInferenceClient("")
	_, err := client.Infer(context.Background(), nil, nil, InferOptions{})
	assert.Error(t, err)
	_, err = client.Align(context.Background(), nil, AlignOptions{})
	assert.Error(t, err)
}
