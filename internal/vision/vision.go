package vision

import "math/rand"

// 视觉能力接口
// 推理模型（表情/姿态分类）是外部协作方，网关只消费 classify 能力

// Frame 摄像头一帧原始数据
type Frame []byte

// FrameSource 取帧能力
type FrameSource interface {
	Capture() (Frame, error)
}

// Classifier 表情分类能力
type Classifier interface {
	Classify(frame Frame) (string, error)
}

// 表情标签集合
const (
	EmotionNeutral   = "Neutral"
	EmotionHappy     = "Happy"
	EmotionSad       = "Sad"
	EmotionSurprised = "Surprised"
	EmotionNoFace    = "No Face"
)

// SimulatedFrameSource 模拟取帧（无摄像头环境下的降级实现）
type SimulatedFrameSource struct{}

// NewSimulatedFrameSource 创建模拟帧源
func NewSimulatedFrameSource() *SimulatedFrameSource {
	return &SimulatedFrameSource{}
}

// Capture 返回空帧
func (s *SimulatedFrameSource) Capture() (Frame, error) {
	return Frame{}, nil
}

// SimulatedClassifier 模拟分类器（随机表情）
type SimulatedClassifier struct{}

// NewSimulatedClassifier 创建模拟分类器
func NewSimulatedClassifier() *SimulatedClassifier {
	return &SimulatedClassifier{}
}

// Classify 返回随机表情标签
func (s *SimulatedClassifier) Classify(_ Frame) (string, error) {
	labels := []string{EmotionNeutral, EmotionHappy, EmotionSad, EmotionSurprised}
	return labels[rand.Intn(len(labels))], nil
}
