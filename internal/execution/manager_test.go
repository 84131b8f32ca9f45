package execution

import (
	"context"
	"strings"
	"testing"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/risk"
	"github.com/pkg/errors"
)

type fakeExchange struct {
	placeErr    error
	leverageErr error
	closeErr    error
	placed      []string // "symbol buy/sell reduceOnly"
	leverages   map[string]int
	fill        client.OrderFill
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, symbol string, isBuy bool, size, mid float64, reduceOnly bool) (*client.OrderFill, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	dir := "sell"
	if isBuy {
		dir = "buy"
	}
	ro := ""
	if reduceOnly {
		ro = " reduce"
	}
	f.placed = append(f.placed, symbol+" "+dir+ro)
	fill := f.fill
	if fill.Size == 0 {
		fill = client.OrderFill{OrderID: 7, Size: size, AvgPx: mid}
	}
	return &fill, nil
}

func (f *fakeExchange) ClosePosition(ctx context.Context, symbol string, isLong bool, size, mid float64) (*client.OrderFill, error) {
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	return f.PlaceMarketOrder(ctx, symbol, !isLong, size, mid, true)
}

func (f *fakeExchange) UpdateLeverage(_ context.Context, symbol string, leverage int, _ bool) error {
	if f.leverageErr != nil {
		return f.leverageErr
	}
	if f.leverages == nil {
		f.leverages = map[string]int{}
	}
	f.leverages[symbol] = leverage
	return nil
}

type fakePrices struct {
	mids map[string]float64
	err  error
}

func (f *fakePrices) Mid(_ context.Context, symbol string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	mid, ok := f.mids[symbol]
	if !ok {
		return 0, errors.Errorf("no mid for %s", symbol)
	}
	return mid, nil
}
func (f *fakePrices) InvalidateMid(string) {}

type fakeGate struct {
	decision risk.Decision
	size     float64
	leverage int
}

func (f *fakeGate) CheckPreTrade(context.Context, *domain.Signal, float64, float64) risk.Decision {
	return f.decision
}
func (f *fakeGate) CalculatePositionSize(float64, float64, float64, float64, int, float64) (float64, int) {
	return f.size, f.leverage
}

type fakeBook struct {
	positions map[string]domain.Position
	attrs     map[string]domain.StrategyID
	synced    int
}

func newFakeBook() *fakeBook {
	return &fakeBook{positions: map[string]domain.Position{}, attrs: map[string]domain.StrategyID{}}
}
func (f *fakeBook) Get(symbol string) (domain.Position, bool) {
	p, ok := f.positions[symbol]
	return p, ok
}
func (f *fakeBook) List() []domain.Position {
	out := make([]domain.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out
}
func (f *fakeBook) SetAttribution(symbol string, s domain.StrategyID, _, _ float64) {
	f.attrs[symbol] = s
}
func (f *fakeBook) ClearAttribution(symbol string) { delete(f.attrs, symbol) }
func (f *fakeBook) ApplyLocalFill(symbol string, isBuy bool, fill *client.OrderFill, reduceOnly bool, strategy domain.StrategyID, sl, tp float64) {
	if reduceOnly {
		delete(f.positions, symbol)
		return
	}
	side := domain.PositionShort
	if isBuy {
		side = domain.PositionLong
	}
	f.positions[symbol] = domain.Position{Symbol: symbol, Side: side, Size: fill.Size, EntryPrice: fill.AvgPx, Strategy: strategy}
}
func (f *fakeBook) SyncFromExchange(context.Context) error {
	f.synced++
	return nil
}

func approvedGate() *fakeGate {
	return &fakeGate{decision: risk.Decision{Approved: true, MaxLeverage: 5}, size: 0.4, leverage: 3}
}

func aggFor(direction domain.Direction) *domain.AggregatedSignal {
	sig := domain.NewSignal(domain.StrategyMomentum, "ETH", direction, 0.8)
	sig.StopLoss = 2400
	return domain.NewAggregatedSignal(sig, 25, false, "v1")
}

func TestExecuteSignalSuccess(t *testing.T) {
	ex := &fakeExchange{}
	book := newFakeBook()
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2500}}, approvedGate(), book, nil, nil, 1.0)

	res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionLong), 1000)
	if !res.Success {
		t.Fatalf("期望成功，实际: %s", res.Reason)
	}
	if res.Leverage != 3 || res.Size != 0.4 {
		t.Errorf("结果字段不匹配: %+v", res)
	}
	if ex.leverages["ETH"] != 3 {
		t.Errorf("应先调杠杆到 3x，实际 %d", ex.leverages["ETH"])
	}
	if len(ex.placed) != 1 || ex.placed[0] != "ETH buy" {
		t.Errorf("下单记录不匹配: %v", ex.placed)
	}
	if book.attrs["ETH"] != domain.StrategyMomentum {
		t.Error("应登记策略归属")
	}
	if p, ok := book.Get("ETH"); !ok || p.Side != domain.PositionLong {
		t.Error("本地仓位应立即更新")
	}
}

func TestExecuteSignalRiskRejected(t *testing.T) {
	ex := &fakeExchange{}
	gate := &fakeGate{decision: risk.Decision{Approved: false, Reason: "交易已暂停"}}
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2500}}, gate, newFakeBook(), nil, nil, 1.0)

	res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionLong), 1000)
	if res.Success {
		t.Fatal("风控拒绝时不应成功")
	}
	if !strings.Contains(res.Reason, "风控拒绝") {
		t.Errorf("原因应注明风控拒绝: %s", res.Reason)
	}
	if len(ex.placed) != 0 {
		t.Error("风控拒绝后不应触达交易所")
	}
}

func TestExecuteSignalLeverageFailureNotFatal(t *testing.T) {
	ex := &fakeExchange{leverageErr: errors.New("already set")}
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2500}}, approvedGate(), newFakeBook(), nil, nil, 1.0)

	res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionShort), 1000)
	if !res.Success {
		t.Fatalf("调杠杆失败不应阻断下单: %s", res.Reason)
	}
	if len(ex.placed) != 1 || ex.placed[0] != "ETH sell" {
		t.Errorf("下单记录不匹配: %v", ex.placed)
	}
}

func TestExecuteSignalPlaceFailure(t *testing.T) {
	ex := &fakeExchange{placeErr: &client.ExchangeRejected{Op: "place order", Reason: "Insufficient margin"}}
	book := newFakeBook()
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2500}}, approvedGate(), book, nil, nil, 1.0)

	res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionLong), 1000)
	if res.Success {
		t.Fatal("下单失败不应返回成功")
	}
	if !strings.Contains(res.Reason, "Insufficient margin") {
		t.Errorf("原因应带上交易所原文: %s", res.Reason)
	}
	if len(book.attrs) != 0 {
		t.Error("失败时不应登记归属")
	}
}

func TestClosePosition(t *testing.T) {
	ex := &fakeExchange{}
	book := newFakeBook()
	book.positions["ETH"] = domain.Position{
		Symbol: "ETH", Side: domain.PositionLong, Size: 0.5, EntryPrice: 2500,
		Strategy: domain.StrategyBreakout, Leverage: 3,
	}
	book.attrs["ETH"] = domain.StrategyBreakout
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2600}}, approvedGate(), book, nil, nil, 1.0)

	res := m.ClosePosition(context.Background(), "ETH", "take_profit")
	if !res.Success {
		t.Fatalf("平仓应成功: %s", res.Reason)
	}
	if len(ex.placed) != 1 || ex.placed[0] != "ETH sell reduce" {
		t.Errorf("应为 reduce-only 卖单: %v", ex.placed)
	}
	if _, ok := book.Get("ETH"); ok {
		t.Error("平仓后本地仓位应清除")
	}
	if _, ok := book.attrs["ETH"]; ok {
		t.Error("平仓后归属应清除")
	}
	if book.synced != 1 {
		t.Error("平仓后应触发 resync")
	}
}

func TestClosePositionUnknownSymbol(t *testing.T) {
	m := NewManager(&fakeExchange{}, &fakePrices{}, approvedGate(), newFakeBook(), nil, nil, 1.0)
	res := m.ClosePosition(context.Background(), "DOGE", "manual")
	if res.Success || res.Reason == "" {
		t.Errorf("未知标的平仓应失败并给出原因: %+v", res)
	}
}

func TestCloseAllPositionsIndependentFailures(t *testing.T) {
	ex := &fakeExchange{}
	book := newFakeBook()
	book.positions["ETH"] = domain.Position{Symbol: "ETH", Side: domain.PositionLong, Size: 1, EntryPrice: 2500}
	book.positions["BTC"] = domain.Position{Symbol: "BTC", Side: domain.PositionShort, Size: 0.1, EntryPrice: 60000}
	prices := &fakePrices{mids: map[string]float64{"ETH": 2500}} // BTC 无报价会失败
	m := NewManager(ex, prices, approvedGate(), book, nil, nil, 1.0)

	results := m.CloseAllPositions(context.Background(), "shutdown")
	if len(results) != 2 {
		t.Fatalf("应返回每个标的的结果，实际 %d", len(results))
	}
	var ok, failed int
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("一成一败: ok=%d failed=%d", ok, failed)
	}
}

func TestExecuteSignalCircuitBreakerTrips(t *testing.T) {
	ex := &fakeExchange{placeErr: errors.New("insufficient margin")}
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{MaxConsecutiveFailures: 2})
	m := NewManager(ex, &fakePrices{mids: map[string]float64{"ETH": 2500}}, approvedGate(), newFakeBook(), nil, breaker, 1.0)

	for i := 0; i < 2; i++ {
		res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionLong), 10000)
		if res.Success {
			t.Fatalf("下单应失败")
		}
		if !strings.Contains(res.Reason, "下单失败") {
			t.Fatalf("第 %d 次失败原因不对: %s", i+1, res.Reason)
		}
	}

	// 连续失败达到上限后，后续开仓在下单前就被熔断拦下
	ex.placeErr = nil
	res := m.ExecuteSignal(context.Background(), aggFor(domain.DirectionLong), 10000)
	if res.Success {
		t.Fatalf("熔断后不应继续开仓")
	}
	if !strings.Contains(res.Reason, "执行熔断") {
		t.Fatalf("期待执行熔断拒绝, got: %s", res.Reason)
	}
	if len(ex.placed) != 0 {
		t.Fatalf("熔断后不应触达交易所: %v", ex.placed)
	}
}
