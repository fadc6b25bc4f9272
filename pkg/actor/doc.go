// Package actor 提供跨执行上下文的 Actor 式远程过程调用
//
// 控制端通过一个有序端口驱动一个工作端，像调用本地对象一样调用工作端托管的实例：
// • 工作端是单一 goroutine，独占全部托管实例（无需加锁）
// • 每个方向的消息保持发送顺序
// • 回复按请求 ID 关联，不假设不同请求的完成顺序
// • 大块数据通过 [Transfer] 转移所有权而不复制
//
// # 核心组件
//
// [Registry] 是类名到 [Factory] 的静态注册表，在工作端启动时封存：
//
//	reg := actor.NewRegistry().Register("Counter", newCounter)
//	a := actor.Spawn(reg, actor.WithRequestTimeout(5*time.Second))
//	defer a.Close()
//
// [Actor] 是控制端句柄，[Actor.Create] 创建远端实例并返回 [Instance] 代理。
// [Instance.Call] 发送带请求 ID 的调用并等待回复，[Instance.Commit] 发送不需要回复的调用，
// [Instance.Release] 释放实例。异步版本返回 [Future]。
//
// [Receiver] 是托管对象的接口，通过方法名显式分派。[Context] 让托管对象把定时器回调
// 投递回工作端循环（[Context.Post]），或创建子工作端（[Context.Spawn]）。
//
// # 端口
//
// [Pipe] 创建一对进程内端口，值按原样传递。[NewStreamPort] 在字节流上传输
// 每行一条的 JSON 记录，配合 [Serve] 可以把工作端放到子进程或网络另一端。
//
// # 错误
//
// [ProtocolError] 表示协议违规（未知请求 ID、未知实例、未知类名），记录为错误日志并交给
// [FatalHandler]，默认关闭 Actor。[RemoteError] 只携带远端错误消息。
// [ResponseTimeout] 表示请求超过截止时间，迟到的回复只记录警告。
//
// commit 调用失败没有回复通道，由工作端的 [Decider] 决定继续运行还是终止。
package actor
