package services

import "errors"

var (
	// ErrLockConflict 要素已被其他会话锁定
	ErrLockConflict = errors.New("road already locked by another session")
	// ErrNotFound 读操作未命中，按空结果处理
	ErrNotFound = errors.New("road not found")
	// ErrDetectionTimeout 识别服务超时，与普通网络错误区分
	ErrDetectionTimeout = errors.New("road detection timed out")
	// ErrNoSelection 当前没有选中的要素
	ErrNoSelection = errors.New("no feature selected")
	// ErrBadNodeIndex 节点编号无效
	ErrBadNodeIndex = errors.New("invalid node index")
	// ErrInvalidGeometry 几何校验未通过，整批拒绝
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrInvalidRoadID roadid缺失或非法
	ErrInvalidRoadID = errors.New("invalid roadid")
)
