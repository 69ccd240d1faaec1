// services/detect_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb/geojson"
)

// DetectTimeout 识别服务预算上限
const DetectTimeout = 5 * time.Minute

// DetectService 外部道路识别服务客户端
// 服务端推理很慢，请求必须可超时取消，超时与普通失败区分上报
type DetectService struct {
	BaseURL string
	Client  *http.Client
}

func NewDetectService(baseURL string) *DetectService {
	return &DetectService{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

// DetectRoads 按坐标请求候选道路几何
func (s *DetectService) DetectRoads(ctx context.Context, lat, lng float64) (*geojson.FeatureCollection, error) {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/infer_coord?lat=%s&lon=%s",
		s.BaseURL,
		url.QueryEscape(fmt.Sprintf("%f", lat)),
		url.QueryEscape(fmt.Sprintf("%f", lng)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrDetectionTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrDetectionTimeout
		}
		return nil, err
	}

	detected, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("bad detection response: %w", err)
	}
	return detected, nil
}
