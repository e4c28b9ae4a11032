package backtest

import (
	"errors"
	"fmt"
	"math"

	"quantbt/internal/market"
)

// ErrInvalidParameter 表示模拟参数非法（负成本率、非正初始资金等）。
var ErrInvalidParameter = errors.New("invalid backtest parameter")

// Simulator 把信号序列推演为资金曲线与交易列表。
//
// 核心不变量是一期执行滞后：区间 (t, t+1] 内持有的仓位等于 t 时刻的
// 信号，绝不使用 t+1 时刻的信号——即使策略实现有未来函数，这里也会
// 把它挡住。
type Simulator struct {
	costRate float64
}

// NewSimulator 构造模拟器。costRate 是每单位仓位变化收取的换手成本率，
// 必须 >= 0。
func NewSimulator(costRate float64) (*Simulator, error) {
	if costRate < 0 {
		return nil, fmt.Errorf("%w: 成本率不能为负 (%.6f)", ErrInvalidParameter, costRate)
	}
	return &Simulator{costRate: costRate}, nil
}

type openTrade struct {
	entryTS    int64
	entryPrice float64
	weight     float64
	// entryRef 是开仓生效前一刻的资金值，平仓时用于结算净盈亏。
	entryRef float64
	cost     float64
}

// Run 逐 bar 推演。signals 必须与 series 等长对齐。
//
// 每个相邻时间对 (t-1, t]：
//  1. 持仓 = signals[t-1]（一期滞后）；
//  2. 期间收益 = 持仓 × 资产收益；
//  3. 持仓变化时按 costRate×|Δ|×当期资金 扣费；
//  4. 资金乘法更新后扣费；
//  5. 进出平仓或方向反转时结转交易记录。
//
// 空序列返回空结果；单点序列返回单点资金曲线、无交易。
// 数据结束时仍未平的仓位按最后一根 bar 强制平仓（不再收费）。
func (s *Simulator) Run(series *market.Series, signals []float64, initialCapital float64) ([]EquityPoint, []Trade, error) {
	if initialCapital <= 0 {
		return nil, nil, fmt.Errorf("%w: 初始资金必须为正 (%.2f)", ErrInvalidParameter, initialCapital)
	}
	n := series.Len()
	if len(signals) != n {
		return nil, nil, fmt.Errorf("%w: 信号长度 %d 与价格长度 %d 不一致", ErrInvalidParameter, len(signals), n)
	}
	if n == 0 {
		return nil, nil, nil
	}

	equity := make([]EquityPoint, n)
	equity[0] = EquityPoint{TS: series.At(0).TS, Value: initialCapital}

	var trades []Trade
	var open *openTrade
	prevPos := 0.0

	for t := 1; t < n; t++ {
		pos := signals[t-1]
		if math.Abs(pos) > 1 {
			return nil, nil, fmt.Errorf("%w: 第 %d 个信号超出 [-1,1] (%.4f)", ErrInvalidParameter, t-1, pos)
		}
		prev := series.At(t - 1)
		cur := series.At(t)
		value := equity[t-1].Value

		ret := cur.Price/prev.Price - 1
		cost := 0.0
		if positionChanged(pos, prevPos) {
			cost = s.costRate * math.Abs(pos-prevPos) * value

			prevSign := signOf(prevPos)
			curSign := signOf(pos)
			closed := false
			if open != nil && curSign != prevSign {
				// 平仓或反转：换手成本归属被平掉的交易。
				open.cost += cost
				trades = append(trades, s.closeTrade(open, prev.TS, prev.Price, value-cost))
				open = nil
				closed = true
			}
			if open == nil && curSign != 0 {
				ref := value
				tradeCost := cost
				if closed {
					// 反转开新仓：成本已计入上一笔，基准资金为扣费后余额。
					ref = value - cost
					tradeCost = 0
				}
				open = &openTrade{
					entryTS:    prev.TS,
					entryPrice: prev.Price,
					weight:     pos,
					entryRef:   ref,
					cost:       tradeCost,
				}
			} else if open != nil && curSign == signOf(open.weight) {
				// 同向调仓：只计费，不开新交易。
				open.cost += cost
				open.weight = pos
			}
		}

		equity[t] = EquityPoint{TS: cur.TS, Value: value*(1+pos*ret) - cost}
		prevPos = pos
	}

	if open != nil {
		last := series.At(n - 1)
		trades = append(trades, s.closeTrade(open, last.TS, last.Price, equity[n-1].Value))
	}
	return equity, trades, nil
}

func (s *Simulator) closeTrade(open *openTrade, exitTS int64, exitPrice, exitValue float64) Trade {
	side := "long"
	if signOf(open.weight) < 0 {
		side = "short"
	}
	return Trade{
		EntryTS:    open.entryTS,
		ExitTS:     exitTS,
		Side:       side,
		Weight:     open.weight,
		EntryPrice: open.entryPrice,
		ExitPrice:  exitPrice,
		Cost:       open.cost,
		PnL:        exitValue - open.entryRef,
	}
}

// BuyHoldCurve 计算同一序列上满仓持有的基准资金曲线。
func BuyHoldCurve(series *market.Series, initialCapital float64) []EquityPoint {
	n := series.Len()
	if n == 0 {
		return nil
	}
	first := series.At(0).Price
	out := make([]EquityPoint, n)
	for i := 0; i < n; i++ {
		p := series.At(i)
		out[i] = EquityPoint{TS: p.TS, Value: initialCapital * p.Price / first}
	}
	return out
}
