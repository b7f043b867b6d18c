// Package pipeline Pipeline 执行器 HTTP 客户端
//
// 调度器不执行任何同步逻辑，解析/定价/映射/导出/上传全部由外部的
// Pipeline 执行器完成。本包只封装两个控制调用：
//   - Start：启动一次新的执行，执行器创建 Run 行并返回 run_id
//   - Resume：要求执行器继续推进指定 Run
//
// 两个调用以 run_id 为幂等键，超时受限；调用失败只影响当前 tick
// 的决策，不改变 Run 状态，下一个 tick 会重新评估。
package pipeline

import "context"

// Executor Pipeline 执行器控制接口
type Executor interface {
	// Start 启动一次新的同步执行，返回执行器创建的 run_id
	Start(ctx context.Context, req *StartRequest) (string, error)

	// Resume 要求执行器继续推进指定 Run
	Resume(ctx context.Context, runID string) (*ResumeResult, error)
}
