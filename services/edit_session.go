// services/edit_session.go
package services

import (
	"fmt"
	"sync"

	"github.com/GrainArc/RoadCollab/methods"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Node 选中要素几何上的一个坐标点，按线+点位置寻址
// Index是跨所有线的稠密编号，结构性编辑后必须重算
type Node struct {
	Index      int
	LineIndex  int
	PointIndex int
	Lat        float64
	Lng        float64
}

// ChangeNotifier 编辑变更出口，由传输层注入
type ChangeNotifier interface {
	RoadChanged(f *geojson.Feature)
}

// BatchStore 提交端的最小依赖
type BatchStore interface {
	ApplyBatch(updates []RoadUpdate, editedBy, editReason string) error
}

// EditSession 一次编辑会话的全部可变状态：
// 道路集合、识别待存集合、选中要素的节点模型、未保存变更与回滚基线
type EditSession struct {
	mu         sync.RWMutex
	roads      *geojson.FeatureCollection
	detected   *geojson.FeatureCollection
	selectedID string
	nodes      []Node
	pending    map[string]*geojson.Feature
	beforeSave map[string]*geojson.Feature
	history    *EditHistory
	store      BatchStore
	notifier   ChangeNotifier
}

func NewEditSession(store BatchStore, notifier ChangeNotifier) *EditSession {
	return &EditSession{
		roads:      geojson.NewFeatureCollection(),
		pending:    make(map[string]*geojson.Feature),
		beforeSave: make(map[string]*geojson.Feature),
		history:    NewEditHistory(),
		store:      store,
		notifier:   notifier,
	}
}

// LoadRoads 载入当前道路集合，几何统一为MultiLineString
func (s *EditSession) LoadRoads(fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roads = geojson.NewFeatureCollection()
	if fc == nil {
		return
	}
	for _, feature := range fc.Features {
		if feature == nil {
			continue
		}
		copied := methods.CloneFeature(feature)
		if mls, ok := methods.NormalizeToMultiLine(copied.Geometry); ok {
			copied.Geometry = mls
		}
		s.roads.Append(copied)
	}
}

// SelectFeature 选中要素并重建节点模型，找不到则节点清空
func (s *EditSession) SelectFeature(roadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedID = roadID
	s.rebuildNodes()
}

// Nodes 当前节点列表的副本
func (s *EditSession) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	return nodes
}

// InsertNode 在指定节点之后插入新点，返回新点的节点编号，便于连续插点
func (s *EditSession) InsertNode(afterNodeIndex int, lat, lng float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feature, isDetected, err := s.selectedFeature()
	if err != nil {
		return 0, err
	}
	node, err := s.nodeAt(afterNodeIndex)
	if err != nil {
		return 0, err
	}

	s.snapshotBaseline(feature)
	before := methods.CloneFeature(feature)

	updated := methods.CloneFeature(feature)
	mls := updated.Geometry.(orb.MultiLineString)
	line := mls[node.LineIndex]

	insertIndex := node.PointIndex + 1
	newLine := make(orb.LineString, 0, len(line)+1)
	newLine = append(newLine, line[:insertIndex]...)
	newLine = append(newLine, orb.Point{lng, lat})
	newLine = append(newLine, line[insertIndex:]...)
	mls[node.LineIndex] = newLine
	updated.Geometry = mls

	s.history.Record(ActionInsertNode, s.selectedID, before, updated)
	s.applyFeature(updated, isDetected)
	s.rebuildNodes()

	for _, n := range s.nodes {
		if n.LineIndex == node.LineIndex && n.PointIndex == insertIndex {
			return n.Index, nil
		}
	}
	return 0, ErrBadNodeIndex
}

// UpdateNode 替换节点坐标
func (s *EditSession) UpdateNode(nodeIndex int, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feature, isDetected, err := s.selectedFeature()
	if err != nil {
		return err
	}
	node, err := s.nodeAt(nodeIndex)
	if err != nil {
		return err
	}

	s.snapshotBaseline(feature)
	before := methods.CloneFeature(feature)

	updated := methods.CloneFeature(feature)
	mls := updated.Geometry.(orb.MultiLineString)
	mls[node.LineIndex][node.PointIndex] = orb.Point{lng, lat}
	updated.Geometry = mls

	s.history.Record(ActionUpdateNode, s.selectedID, before, updated)
	s.applyFeature(updated, isDetected)
	s.rebuildNodes()
	return nil
}

// DeleteNode 删除节点，线被删空时整线移除
// 要素删到零线仍保留在集合内，提交后历史照常留存
func (s *EditSession) DeleteNode(nodeIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feature, isDetected, err := s.selectedFeature()
	if err != nil {
		return err
	}
	node, err := s.nodeAt(nodeIndex)
	if err != nil {
		return err
	}

	s.snapshotBaseline(feature)
	before := methods.CloneFeature(feature)

	updated := methods.CloneFeature(feature)
	mls := updated.Geometry.(orb.MultiLineString)
	line := mls[node.LineIndex]
	line = append(line[:node.PointIndex], line[node.PointIndex+1:]...)

	if len(line) == 0 {
		mls = append(mls[:node.LineIndex], mls[node.LineIndex+1:]...)
	} else {
		mls[node.LineIndex] = line
	}
	updated.Geometry = mls

	s.history.Record(ActionDeleteNode, s.selectedID, before, updated)
	s.applyFeature(updated, isDetected)
	s.rebuildNodes()
	return nil
}

// ApplyChange 整体替换要素并标记为待保存，同时对外广播
func (s *EditSession) ApplyChange(feature *geojson.Feature) error {
	if feature == nil {
		return ErrInvalidRoadID
	}
	roadID := methods.RoadID(feature)
	if roadID == "" {
		return ErrInvalidRoadID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := methods.CloneFeature(feature)
	if mls, ok := methods.NormalizeToMultiLine(copied.Geometry); ok {
		copied.Geometry = mls
	}
	existing, isDetected := s.findFeature(roadID)
	if existing != nil && !isDetected {
		s.snapshotBaseline(existing)
	}
	s.applyFeature(copied, isDetected)
	if roadID == s.selectedID {
		s.rebuildNodes()
	}
	return nil
}

// Undo 撤销最近一次节点动作，返回受影响的要素，无历史时返回nil
func (s *EditSession) Undo() *geojson.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := s.history.Undo(s.currentFeature)
	return s.applyRestored(restored)
}

// Redo 重做最近一次被撤销的动作
func (s *EditSession) Redo() *geojson.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := s.history.Redo(s.currentFeature)
	return s.applyRestored(restored)
}

// AcceptDetected 接收识别结果，按线去重后进入待存集合
func (s *EditSession) AcceptDetected(candidates *geojson.FeatureCollection) *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detected = methods.MergeDetected(candidates, s.roads)
	return methods.CloneCollection(s.detected)
}

// HasPendingChanges 有未保存变更或识别待存要素时为真
func (s *EditSession) HasPendingChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.pending) > 0 {
		return true
	}
	return s.detected != nil && len(s.detected.Features) > 0
}

// Commit 将全部未保存变更与识别要素整批提交
// 成功后清空待存状态、回滚基线与历史；失败时本地状态原样保留
func (s *EditSession) Commit(author, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []RoadUpdate
	for roadID, feature := range s.pending {
		updates = append(updates, RoadUpdate{
			RoadID:   roadID,
			Geometry: feature.Geometry,
		})
	}
	if s.detected != nil {
		for _, feature := range s.detected.Features {
			roadID := methods.RoadID(feature)
			if roadID == "" {
				continue
			}
			updates = append(updates, RoadUpdate{
				RoadID:   roadID,
				Geometry: feature.Geometry,
				IsNew:    true,
			})
		}
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.store.ApplyBatch(updates, author, reason); err != nil {
		return fmt.Errorf("batch save failed: %w", err)
	}

	// 已提交的识别要素并入正式集合，待存区清空
	if s.detected != nil {
		for _, feature := range s.detected.Features {
			s.replaceOrAppendRoad(methods.CloneFeature(feature))
		}
		s.detected = nil
	}
	s.pending = make(map[string]*geojson.Feature)
	s.beforeSave = make(map[string]*geojson.Feature)
	s.history.Clear()
	return nil
}

// Discard 全部回退到上次保存基线，丢弃识别待存要素
func (s *EditSession) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roadID, baseline := range s.beforeSave {
		// 识别待存要素整体丢弃，不回写正式集合
		if _, isDetected := s.findFeature(roadID); isDetected {
			continue
		}
		s.applyFeature(methods.CloneFeature(baseline), false)
	}
	s.pending = make(map[string]*geojson.Feature)
	s.beforeSave = make(map[string]*geojson.Feature)
	s.detected = nil
	s.rebuildNodes()
}

// Roads 正式集合的副本
func (s *EditSession) Roads() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return methods.CloneCollection(s.roads)
}

// Detected 识别待存集合的副本
func (s *EditSession) Detected() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return methods.CloneCollection(s.detected)
}

// Feature 按roadid取要素副本
func (s *EditSession) Feature(roadID string) *geojson.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feature, _ := s.findFeature(roadID)
	return methods.CloneFeature(feature)
}

// 以下内部方法均要求持有s.mu

func (s *EditSession) selectedFeature() (*geojson.Feature, bool, error) {
	if s.selectedID == "" {
		return nil, false, ErrNoSelection
	}
	feature, isDetected := s.findFeature(s.selectedID)
	if feature == nil {
		return nil, false, ErrNoSelection
	}
	return feature, isDetected, nil
}

// findFeature 先查正式集合，再查识别待存集合
func (s *EditSession) findFeature(roadID string) (*geojson.Feature, bool) {
	for _, feature := range s.roads.Features {
		if methods.RoadID(feature) == roadID {
			return feature, false
		}
	}
	if s.detected != nil {
		for _, feature := range s.detected.Features {
			if methods.RoadID(feature) == roadID {
				return feature, true
			}
		}
	}
	return nil, false
}

func (s *EditSession) currentFeature(roadID string) *geojson.Feature {
	feature, _ := s.findFeature(roadID)
	return feature
}

func (s *EditSession) nodeAt(index int) (Node, error) {
	for _, node := range s.nodes {
		if node.Index == index {
			return node, nil
		}
	}
	return Node{}, ErrBadNodeIndex
}

// snapshotBaseline 自上次保存以来的首次修改前，留存回滚基线
func (s *EditSession) snapshotBaseline(feature *geojson.Feature) {
	roadID := methods.RoadID(feature)
	if _, ok := s.beforeSave[roadID]; !ok {
		s.beforeSave[roadID] = methods.CloneFeature(feature)
	}
}

// applyFeature 替换集合内的要素；正式要素记入待存并广播，识别要素只替换
func (s *EditSession) applyFeature(feature *geojson.Feature, isDetected bool) {
	roadID := methods.RoadID(feature)
	if isDetected {
		for i, existing := range s.detected.Features {
			if methods.RoadID(existing) == roadID {
				s.detected.Features[i] = feature
				return
			}
		}
		return
	}

	s.replaceOrAppendRoad(feature)
	s.pending[roadID] = feature
	if s.notifier != nil {
		s.notifier.RoadChanged(methods.CloneFeature(feature))
	}
}

func (s *EditSession) replaceOrAppendRoad(feature *geojson.Feature) {
	roadID := methods.RoadID(feature)
	for i, existing := range s.roads.Features {
		if methods.RoadID(existing) == roadID {
			s.roads.Features[i] = feature
			return
		}
	}
	s.roads.Append(feature)
}

func (s *EditSession) applyRestored(restored *geojson.Feature) *geojson.Feature {
	if restored == nil {
		return nil
	}
	roadID := methods.RoadID(restored)
	_, isDetected := s.findFeature(roadID)
	s.applyFeature(restored, isDetected)
	if roadID == s.selectedID {
		s.rebuildNodes()
	}
	return methods.CloneFeature(restored)
}

// rebuildNodes 从选中要素的几何重建节点编号
func (s *EditSession) rebuildNodes() {
	s.nodes = s.nodes[:0]
	if s.selectedID == "" {
		return
	}
	feature, _ := s.findFeature(s.selectedID)
	if feature == nil {
		return
	}
	mls, ok := methods.NormalizeToMultiLine(feature.Geometry)
	if !ok {
		return
	}

	index := 0
	for lineIndex, line := range mls {
		for pointIndex, point := range line {
			s.nodes = append(s.nodes, Node{
				Index:      index,
				LineIndex:  lineIndex,
				PointIndex: pointIndex,
				Lat:        point[1],
				Lng:        point[0],
			})
			index++
		}
	}
}
