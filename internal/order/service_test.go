package order_test

import (
	"context"
	"testing"
	"time"

	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
	"cinema-ticketing/internal/order"
	"cinema-ticketing/internal/order/db"
	"cinema-ticketing/internal/payment/liqpay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockDBLayer) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Movie), args.Error(1)
}

func (m *MockDBLayer) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockDBLayer) SeatsInHall(ctx context.Context, hallID int64, seatIDs []int64) ([]models.Seat, error) {
	args := m.Called(ctx, hallID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Seat), args.Error(1)
}

func (m *MockDBLayer) TakenSeatIDs(ctx context.Context, sessionID int64, seatIDs []int64) ([]int64, error) {
	args := m.Called(ctx, sessionID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockDBLayer) SessionSeatMap(ctx context.Context, sessionID int64) ([]models.SeatStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SeatStatus), args.Error(1)
}

func (m *MockDBLayer) CreateOrderWithTickets(ctx context.Context, o *models.Order, tickets []models.Ticket, useBonuses bool) error {
	args := m.Called(ctx, o, tickets, useBonuses)
	return args.Error(0)
}

func (m *MockDBLayer) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) GetOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) TicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockDBLayer) OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderWithTickets), args.Error(1)
}

func (m *MockDBLayer) ConfirmOrder(ctx context.Context, orderID string) (*models.Order, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Order), args.Bool(1), args.Error(2)
}

func (m *MockDBLayer) CancelOrder(ctx context.Context, orderID string) (*models.Order, []int64, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, nil, args.Bool(2), args.Error(3)
	}
	var freed []int64
	if args.Get(1) != nil {
		freed = args.Get(1).([]int64)
	}
	return args.Get(0).(*models.Order), freed, args.Bool(2), args.Error(3)
}

func (m *MockDBLayer) BonusAccount(ctx context.Context, userID string) (*models.BonusAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BonusAccount), args.Error(1)
}

type MockSeatHold struct {
	mock.Mock
}

func (m *MockSeatHold) HoldSeats(ctx context.Context, sessionID int64, seatIDs []int64, orderID string) (bool, error) {
	args := m.Called(ctx, sessionID, seatIDs, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSeatHold) ReleaseSeats(ctx context.Context, sessionID int64, seatIDs []int64) error {
	args := m.Called(ctx, sessionID, seatIDs)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, topic string, o *models.Order) error {
	args := m.Called(ctx, topic, o)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OrderPaid(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type fixture struct {
	db       *MockDBLayer
	holds    *MockSeatHold
	events   *MockPublisher
	notifier *MockNotifier
	gateway  *liqpay.Client
	svc      *order.OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       new(MockDBLayer),
		holds:    new(MockSeatHold),
		events:   new(MockPublisher),
		notifier: new(MockNotifier),
		gateway:  liqpay.New("test_public", "test_private", true),
	}
	f.svc = order.NewOrderService(f.db, f.holds, f.gateway, f.events, f.notifier, "UAH", logger.NewLogger())
	return f
}

func testSession(price int64) *models.Session {
	return &models.Session{
		ID:       10,
		MovieID:  3,
		HallID:   7,
		StartsAt: time.Now().Add(24 * time.Hour),
		EndsAt:   time.Now().Add(26 * time.Hour),
		Price:    price,
		IsActive: true,
	}
}

func testSeats(hallID int64, ids ...int64) []models.Seat {
	seats := make([]models.Seat, len(ids))
	for i, id := range ids {
		seats[i] = models.Seat{ID: id, HallID: hallID, Row: 1, Num: int(i + 1)}
	}
	return seats
}

func TestCreateOrderReturnsSignedCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, Title: "Dune", AgeCategory: 12}, nil)
	f.db.On("GetProfile", ctx, "user-1").Return(nil, nil)
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1, 2}).Return(testSeats(7, 1, 2), nil)
	f.db.On("TakenSeatIDs", ctx, int64(10), []int64{1, 2}).Return([]int64{}, nil)
	f.holds.On("HoldSeats", ctx, int64(10), []int64{1, 2}, mock.Anything).Return(true, nil)
	f.db.On("CreateOrderWithTickets", ctx, mock.Anything, mock.Anything, false).Return(nil)
	f.events.On("PublishOrderEvent", ctx, "order.created", mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, resp.Order.Status)
	assert.Equal(t, int64(200), resp.Order.TotalAmount)
	assert.False(t, resp.PaidByBonuses)
	require.NotNil(t, resp.Payment)
	assert.True(t, f.gateway.VerifyCallback(resp.Payment.Data, resp.Payment.Signature))
	f.events.AssertCalled(t, "PublishOrderEvent", ctx, "order.created", mock.Anything)
}

func TestCreateOrderPaidEntirelyByBonuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 0}, nil)
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1}).Return(testSeats(7, 1), nil)
	f.db.On("TakenSeatIDs", ctx, int64(10), []int64{1}).Return([]int64{}, nil)
	f.holds.On("HoldSeats", ctx, int64(10), []int64{1}, mock.Anything).Return(true, nil)
	f.db.On("CreateOrderWithTickets", ctx, mock.Anything, mock.Anything, true).
		Run(func(args mock.Arguments) {
			// The storage layer absorbs the full price from the balance.
			o := args.Get(1).(*models.Order)
			o.BonusesUsed = o.TotalAmount
			o.TotalAmount = 0
			o.Status = models.OrderPaid
		}).Return(nil)
	f.events.On("PublishOrderEvent", ctx, mock.Anything, mock.Anything).Return(nil)
	f.holds.On("ReleaseSeats", ctx, int64(10), []int64{1}).Return(nil)
	f.notifier.On("OrderPaid", ctx, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}, UseBonuses: true})
	require.NoError(t, err)

	assert.True(t, resp.PaidByBonuses)
	assert.Nil(t, resp.Payment)
	assert.Equal(t, models.OrderPaid, resp.Order.Status)
	f.events.AssertCalled(t, "PublishOrderEvent", ctx, "order.paid", mock.Anything)
	f.notifier.AssertCalled(t, "OrderPaid", ctx, resp.Order.ID)
}

func TestCreateOrderRejectsInactiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)
	session.IsActive = false

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateOrderRejectsEmptyAndDuplicateSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var verr *order.ValidationError
	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10})
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{4, 4}})
	require.ErrorAs(t, err, &verr)
}

func TestCreateOrderRejectsForeignSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 0}, nil)
	// Only one of the two requested seats belongs to the hall.
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1, 99}).Return(testSeats(7, 1), nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1, 99}})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateOrderConflictOnTakenSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 0}, nil)
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1, 2}).Return(testSeats(7, 1, 2), nil)
	f.db.On("TakenSeatIDs", ctx, int64(10), []int64{1, 2}).Return([]int64{2}, nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1, 2}})
	require.ErrorIs(t, err, db.ErrSeatTaken)
}

func TestCreateOrderReleasesHoldsOnCommitConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 0}, nil)
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1}).Return(testSeats(7, 1), nil)
	f.db.On("TakenSeatIDs", ctx, int64(10), []int64{1}).Return([]int64{}, nil)
	f.holds.On("HoldSeats", ctx, int64(10), []int64{1}, mock.Anything).Return(true, nil)
	f.db.On("CreateOrderWithTickets", ctx, mock.Anything, mock.Anything, false).Return(db.ErrSeatTaken)
	f.holds.On("ReleaseSeats", ctx, int64(10), []int64{1}).Return(nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}})
	require.ErrorIs(t, err, db.ErrSeatTaken)
	f.holds.AssertCalled(t, "ReleaseSeats", ctx, int64(10), []int64{1})
}

func TestAgeGateRequiresBirthDateForAdultScreenings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 18}, nil)
	f.db.On("GetProfile", ctx, "user-1").Return(nil, nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}})
	var ferr *order.ForbiddenError
	require.ErrorAs(t, err, &ferr)
}

func TestAgeGateRejectsUnderageViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)
	birthDate := time.Now().AddDate(-14, 0, 0)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 16}, nil)
	f.db.On("GetProfile", ctx, "user-1").Return(&models.UserProfile{UserID: "user-1", BirthDate: &birthDate}, nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}})
	var ferr *order.ForbiddenError
	require.ErrorAs(t, err, &ferr)
}

func TestAgeGatePassesAdultViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := testSession(100)
	birthDate := time.Now().AddDate(-30, 0, 0)

	f.db.On("GetSession", ctx, int64(10)).Return(session, nil)
	f.db.On("GetMovie", ctx, int64(3)).Return(&models.Movie{ID: 3, AgeCategory: 18}, nil)
	f.db.On("GetProfile", ctx, "user-1").Return(&models.UserProfile{UserID: "user-1", BirthDate: &birthDate}, nil)
	f.db.On("SeatsInHall", ctx, int64(7), []int64{1}).Return(testSeats(7, 1), nil)
	f.db.On("TakenSeatIDs", ctx, int64(10), []int64{1}).Return([]int64{}, nil)
	f.holds.On("HoldSeats", ctx, int64(10), []int64{1}, mock.Anything).Return(true, nil)
	f.db.On("CreateOrderWithTickets", ctx, mock.Anything, mock.Anything, false).Return(nil)
	f.events.On("PublishOrderEvent", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateOrder(ctx, "user-1", models.CreateOrderRequest{SessionID: 10, SeatIDs: []int64{1}})
	require.NoError(t, err)
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.On("GetOrderByID", ctx, "order-1").Return(&models.Order{ID: "order-1", UserID: "owner"}, nil)

	_, err := f.svc.GetOrder(ctx, "intruder", "order-1")
	var ferr *order.ForbiddenError
	require.ErrorAs(t, err, &ferr)
}
