package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvid-labs/weathervane/internal/fault"
	"github.com/corvid-labs/weathervane/internal/geo"
	"github.com/corvid-labs/weathervane/internal/geocode"
	"github.com/corvid-labs/weathervane/internal/weather"
)

var validate = validator.New()

// statusClientClosedRequest is the nginx convention for a caller that
// cancelled before the response was ready.
const statusClientClosedRequest = 499

// defaultAccuracyMeters stands in when a client does not report its position
// fix quality; 100 m leaves the cache lifetime at its base value.
const defaultAccuracyMeters = 100

// RegisterRoutes wires the HTTP handlers into the Fiber app. The resolver is
// optional; without it, city/country lookups answer 501.
func RegisterRoutes(app *fiber.App, svc *weather.Service, resolver geocode.Resolver) {
	app.Get("/health", func(c *fiber.Ctx) error {
		st, _ := svc.ClientParams()
		current, forecast := svc.CacheSizes()
		return c.JSON(fiber.Map{
			"status":  "ok",
			"network": st,
			"cache": fiber.Map{
				"current":  current,
				"forecast": forecast,
			},
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		pt, accuracy, err := resolvePoint(c, resolver)
		if err != nil {
			return err
		}

		snapshot, err := svc.CurrentFor(c.UserContext(), pt, accuracy)
		if err != nil {
			return err
		}
		return c.JSON(snapshot)
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		pt, accuracy, err := resolvePoint(c, resolver)
		if err != nil {
			return err
		}

		days, err := parseDays(c)
		if err != nil {
			return err
		}

		forecast, err := svc.ForecastFor(c.UserContext(), pt, accuracy, days)
		if err != nil {
			return err
		}
		return c.JSON(forecast)
	})

	v1.Get("/client-config", func(c *fiber.Ctx) error {
		st, params := svc.ClientParams()
		return c.JSON(fiber.Map{
			"network": st,
			"fetch": fiber.Map{
				"timeoutMs":         params.Timeout.Milliseconds(),
				"sampleIntervalMs":  params.SampleInterval.Milliseconds(),
				"minMovementMeters": params.MinMovementMeters,
			},
		})
	})
}

// ErrorHandler renders handler errors as JSON, translating classified faults
// into transport statuses. Wire it into fiber.Config so every route shares
// one mapping.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":   true,
			"message": fiberErr.Message,
		})
	}

	if errors.Is(err, weather.ErrNoForecastProvider) {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	failure := fault.Classify(err)
	if failure.Kind == fault.KindRateLimited && failure.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(failure.RetryAfter/time.Second)))
	}
	return c.Status(statusFor(failure.Kind)).JSON(fiber.Map{
		"error":     true,
		"message":   failure.Message,
		"kind":      string(failure.Kind),
		"retryable": failure.Retryable,
	})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindConnection:
		return fiber.StatusServiceUnavailable
	case fault.KindTimeout:
		return fiber.StatusGatewayTimeout
	case fault.KindRateLimited:
		return fiber.StatusTooManyRequests
	case fault.KindServerFault, fault.KindAuthFailure:
		return fiber.StatusBadGateway
	case fault.KindForbidden:
		return fiber.StatusForbidden
	case fault.KindNotFound:
		return fiber.StatusNotFound
	case fault.KindInvalidRequest:
		return fiber.StatusUnprocessableEntity
	case fault.KindCancelled:
		return statusClientClosedRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// coordsQuery holds an explicit position from the query string.
type coordsQuery struct {
	Lat float64 `validate:"min=-90,max=90"`
	Lon float64 `validate:"min=-180,max=180"`
}

// placeQuery identifies a location by name for geocoding.
type placeQuery struct {
	City    string `validate:"required"`
	Country string `validate:"required"`
}

// resolvePoint extracts the queried position: lat/lon when given, otherwise
// city/country through the resolver. It also reads the optional accuracy
// parameter (meters) that shapes the cache lifetime downstream.
func resolvePoint(c *fiber.Ctx, resolver geocode.Resolver) (geo.Point, float64, error) {
	accuracy := float64(defaultAccuracyMeters)
	if raw := c.Query("accuracy"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return geo.Point{}, 0, fiber.NewError(fiber.StatusBadRequest, "accuracy must be a non-negative number of meters")
		}
		accuracy = v
	}

	latRaw, lonRaw := c.Query("lat"), c.Query("lon")
	if latRaw != "" || lonRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lon, lonErr := strconv.ParseFloat(lonRaw, 64)
		if latErr != nil || lonErr != nil {
			return geo.Point{}, 0, fiber.NewError(fiber.StatusBadRequest, "lat and lon must both be numbers")
		}
		if err := validate.Struct(coordsQuery{Lat: lat, Lon: lon}); err != nil {
			return geo.Point{}, 0, fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		return geo.Point{Lat: lat, Lon: lon}, accuracy, nil
	}

	q := placeQuery{City: c.Query("city"), Country: c.Query("country")}
	if q.City == "" && q.Country == "" {
		return geo.Point{}, 0, fiber.NewError(fiber.StatusBadRequest, "specify lat and lon, or city and country")
	}
	if err := validate.Struct(q); err != nil {
		return geo.Point{}, 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if resolver == nil {
		return geo.Point{}, 0, fiber.NewError(fiber.StatusNotImplemented, "place lookup requires a configured geocoder")
	}

	pt, err := resolver.Resolve(c.UserContext(), geocode.Place{City: q.City, Country: q.Country})
	if err != nil {
		return geo.Point{}, 0, err
	}
	return pt, accuracy, nil
}

// parseDays reads the forecast horizon, enforcing the supported range before
// the service is consulted.
func parseDays(c *fiber.Ctx) (int, error) {
	raw := c.Query("days")
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "days query parameter is required")
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "days must be an integer")
	}
	if err := validate.Var(days, "min=1,max=7"); err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 7")
	}
	return days, nil
}
