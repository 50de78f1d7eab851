package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
)

// Coordinator keeps the orders linked to a trip consistent with the trip type.
type Coordinator struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
	now     func() time.Time
}

func NewCoordinator(repo Repository, logg *logger.Logger, m *metrics.CoordinatorMetrics) (*Coordinator, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Coordinator{repo: repo, logg: logg, metrics: m, now: time.Now}, nil
}

// TargetStatus is the order status implied by a trip type.
func TargetStatus(tripType enums.TripType, toBeTransferred bool) (enums.OrderStatus, error) {
	switch tripType {
	case enums.TripTypeActive:
		return enums.OrderStatusInTransit, nil
	case enums.TripTypeReadyToShip:
		return enums.OrderStatusAssigned, nil
	case enums.TripTypePast:
		if toBeTransferred {
			return enums.OrderStatusTransferred, nil
		}
		return enums.OrderStatusDelivered, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown trip type %q", tripType))
	}
}

// Synchronize moves every order linked to tripID to the status implied by
// tripType. All order patches and any extra writes land in one batch. Orders
// already in their target status are left untouched, so re-running is safe.
func (c *Coordinator) Synchronize(ctx context.Context, tripID string, tripType enums.TripType, extra ...docstore.Write) (*SyncResult, error) {
	if strings.TrimSpace(tripID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	if !tripType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown trip type %q", tripType))
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"trip_id": tripID, "trip_type": tripType})
	result := &SyncResult{TripID: tripID, TripType: tripType}

	link, err := c.repo.FindLinkByTrip(ctx, tripID)
	if err != nil {
		c.metrics.ObserveCascade(string(tripType), "failed")
		return nil, docstore.AppError(err, "resolve trip order link")
	}

	var writes []docstore.Write
	counts := map[enums.OrderStatus]int{}
	if link != nil {
		now := c.now().UTC()
		for _, orderID := range link.OrderIDs {
			order, err := c.repo.FindOrder(ctx, orderID)
			if err != nil {
				c.metrics.ObserveCascade(string(tripType), "failed")
				return nil, docstore.AppError(err, fmt.Sprintf("load order %s", orderID))
			}
			target, err := TargetStatus(tripType, order.ToBeTransferred)
			if err != nil {
				return nil, err
			}
			write, changed, err := statusWrite(order, target, now)
			if err != nil {
				c.metrics.ObserveCascade(string(tripType), "rejected")
				return nil, err
			}
			if !changed {
				result.Skipped = append(result.Skipped, order.ID)
				continue
			}
			writes = append(writes, write)
			result.Updated = append(result.Updated, order.ID)
			counts[target]++
		}
	}

	writes = append(writes, extra...)
	if err := c.repo.Commit(ctx, writes); err != nil {
		c.metrics.ObserveCascade(string(tripType), "failed")
		return nil, docstore.AppError(err, "apply order cascade")
	}

	c.metrics.ObserveCascade(string(tripType), "success")
	for status, n := range counts {
		c.metrics.AddCascadeOrders(string(status), n)
	}
	if len(result.Updated) > 0 {
		c.logg.Info(c.logg.WithField(ctx, "orders_updated", len(result.Updated)), "order cascade applied")
	}
	return result, nil
}

// ReplaceTripOrders swaps the trip's order set wholesale. Newly linked orders
// take the status implied by tripType; unlinked ones return to
// ready_to_transport. The link and every status change commit together.
func (c *Coordinator) ReplaceTripOrders(ctx context.Context, tripID string, tripType enums.TripType, orderIDs []string, extra ...docstore.Write) (*LinkResult, error) {
	if strings.TrimSpace(tripID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	if !tripType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown trip type %q", tripType))
	}
	wanted, err := normalizeIDs(orderIDs)
	if err != nil {
		return nil, err
	}
	writes, result, err := c.planLink(ctx, tripID, tripType, wanted, false)
	if err != nil {
		return nil, err
	}
	if err := c.repo.Commit(ctx, append(writes, extra...)); err != nil {
		return nil, docstore.AppError(err, "replace trip orders")
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"trip_id": tripID,
		"added":   len(result.Added),
		"removed": len(result.Removed),
	}), "trip orders replaced")
	return result, nil
}

// ReleaseTripOrders detaches every order from the trip and deletes its link.
func (c *Coordinator) ReleaseTripOrders(ctx context.Context, tripID string, extra ...docstore.Write) (*LinkResult, error) {
	writes, result, err := c.planLink(ctx, tripID, "", nil, true)
	if err != nil {
		return nil, err
	}
	if err := c.repo.Commit(ctx, append(writes, extra...)); err != nil {
		return nil, docstore.AppError(err, "release trip orders")
	}
	return result, nil
}

func (c *Coordinator) planLink(ctx context.Context, tripID string, tripType enums.TripType, wanted []string, drop bool) ([]docstore.Write, *LinkResult, error) {
	link, err := c.repo.FindLinkByTrip(ctx, tripID)
	if err != nil {
		return nil, nil, docstore.AppError(err, "resolve trip order link")
	}
	var existing []string
	if link != nil {
		existing = link.OrderIDs
	}

	now := c.now().UTC()
	result := &LinkResult{TripID: tripID, OrderIDs: wanted}
	var writes []docstore.Write

	current := toSet(existing)
	next := toSet(wanted)

	for _, id := range wanted {
		if current[id] {
			continue
		}
		order, err := c.repo.FindOrder(ctx, id)
		if err != nil {
			return nil, nil, docstore.AppError(err, fmt.Sprintf("load order %s", id))
		}
		if order.Status != enums.OrderStatusReadyToTransport {
			return nil, nil, pkgerrors.New(pkgerrors.CodePreconditionFailed,
				fmt.Sprintf("order %s is %s and cannot be attached", id, order.Status)).
				WithDetails(map[string]any{"order_id": id, "status": order.Status})
		}
		target, err := TargetStatus(tripType, order.ToBeTransferred)
		if err != nil {
			return nil, nil, err
		}
		write, changed, err := statusWrite(order, target, now)
		if err != nil {
			return nil, nil, err
		}
		if changed {
			writes = append(writes, write)
		}
		result.Added = append(result.Added, id)
	}

	for _, id := range existing {
		if next[id] {
			continue
		}
		order, err := c.repo.FindOrder(ctx, id)
		if err != nil {
			return nil, nil, docstore.AppError(err, fmt.Sprintf("load order %s", id))
		}
		write, changed, err := statusWrite(order, enums.OrderStatusReadyToTransport, now)
		if err != nil {
			return nil, nil, err
		}
		if changed {
			writes = append(writes, write)
		}
		result.Removed = append(result.Removed, id)
	}

	key := tripID
	expect := docstore.Version(0)
	if link != nil {
		key = link.ID
		expect = docstore.Version(link.Version)
	}
	if drop {
		if link != nil {
			writes = append(writes, docstore.Write{Collection: LinkCollection, Key: key, Delete: true, ExpectVersion: expect})
		}
		return writes, result, nil
	}
	writes = append(writes, docstore.Write{
		Collection:    LinkCollection,
		Key:           key,
		Replace:       TripOrderLink{ID: key, TripID: tripID, OrderIDs: wanted, UpdatedAt: now},
		ExpectVersion: expect,
	})
	return writes, result, nil
}

// statusWrite builds the patch moving order to target. The transferred rule
// records the current location as the previous center and moves the order to
// its transfer center. An order that was swapped before and still sits at the
// transfer center keeps its recorded previous center.
func statusWrite(order *Order, target enums.OrderStatus, now time.Time) (docstore.Write, bool, error) {
	if order.Status == target {
		return docstore.Write{}, false, nil
	}
	fields := map[string]any{
		"status":     target,
		"updated_at": now,
	}
	if target == enums.OrderStatusTransferred {
		if order.TransferCenterLocation == nil {
			return docstore.Write{}, false, pkgerrors.New(pkgerrors.CodePreconditionFailed,
				fmt.Sprintf("order %s is marked for transfer but has no transfer center", order.ID)).
				WithDetails(map[string]any{"order_id": order.ID})
		}
		swapped := order.PreviousCenterLocation != nil && order.CurrentLocation == *order.TransferCenterLocation
		if !swapped {
			fields["previous_center_location"] = order.CurrentLocation
			fields["current_location"] = *order.TransferCenterLocation
		}
	}
	return docstore.Write{
		Collection:    Collection,
		Key:           order.ID,
		Fields:        fields,
		ExpectVersion: docstore.Version(order.Version),
	}, true, nil
}

func normalizeIDs(ids []string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ids must not be blank")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
