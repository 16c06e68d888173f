package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/metrics"
)

type biddingApi struct {
	svc      *bidding.Service
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func registerBiddingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := biddingApi{svc: deps.BiddingSvc, validate: deps.Validate, metrics: deps.Metrics}

	g.POST("/biddings", api.place, jwt, roleMiddleware(user.RoleTeacher))
	g.GET("/biddings/student/:id", api.queryForStudent)
	g.GET("/biddings/teacher/:id", api.queryForTeacher)
	g.POST("/biddings/student/:id/settle", api.settle, jwt, roleMiddleware(user.RoleStudent), selfMiddleware)
}

// Handlers

func (api *biddingApi) place(ctx echo.Context) error {
	var data bidding.NewBid
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBid")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// teachers only bid with their own purse
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if data.TeacherID == "" {
		data.TeacherID = claims.ProfileID
	} else if data.TeacherID != claims.ProfileID {
		return core.ErrForbidden
	}

	bid, err := api.svc.PlaceBid(ctx.Request().Context(), data.TeacherID, data.StudentID, data.Amount())
	if err != nil {
		if api.metrics != nil {
			var reason string
			if de, ok := core.AsDomainError(err); ok {
				reason = de.Reason
			}
			api.metrics.BidRejected(reason)
		}
		return errors.Wrap(err, "placing bid")
	}
	if api.metrics != nil {
		api.metrics.BidPlaced(bid.BidAmount)
	}
	return ctx.JSON(http.StatusCreated, bid)
}

func (api *biddingApi) queryForStudent(ctx echo.Context) error {
	bids, err := api.svc.QueryForStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying student bids")
	}
	return ctx.JSON(http.StatusOK, bids)
}

func (api *biddingApi) queryForTeacher(ctx echo.Context) error {
	bids, err := api.svc.QueryForTeacher(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying teacher bids")
	}
	return ctx.JSON(http.StatusOK, bids)
}

func (api *biddingApi) settle(ctx echo.Context) error {
	settlement, err := api.svc.SettleHighestBid(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "settling highest bid")
	}
	if api.metrics != nil {
		api.metrics.Settled(len(settlement.Refunds))
	}
	return ctx.JSON(http.StatusOK, settlement)
}
