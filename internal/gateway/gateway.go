// Package gateway performs single-document writes for a session. It never
// returns an error to the caller: every outcome is reported as an advisory.
package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"contentplanner/internal/advisory"
	"contentplanner/internal/identity"
	"contentplanner/internal/model"
	"contentplanner/pkg/docstore"
	"contentplanner/pkg/logger"
	"contentplanner/pkg/metrics"
	"contentplanner/pkg/util"
)

// Labels resolves display labels from the local cache so a delete advisory
// can still name the document once it is gone.
type Labels interface {
	TaskTitle(id string) (string, bool)
	PostLabel(id string) (string, bool)
}

// IdentitySource returns the acting identity or nil when signed out.
type IdentitySource func() *identity.Identity

type Gateway struct {
	store    docstore.Store
	identity IdentitySource
	labels   Labels
	sink     advisory.Sink
	logger   *zap.Logger
}

func New(store docstore.Store, id IdentitySource, labels Labels, sink advisory.Sink, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:    store,
		identity: id,
		labels:   labels,
		sink:     sink,
		logger:   logger,
	}
}

// CreateTask writes a new task and returns its id, or "" when it failed.
func (g *Gateway) CreateTask(ctx context.Context, in model.TaskInput) string {
	title := ""
	if in.Title != nil {
		title = *in.Title
	}
	return g.create(ctx, model.CollectionTasks, in.Fields(),
		advisory.Success("Task Added", fmt.Sprintf("Task %q has been successfully added.", title)),
		"Error adding task")
}

func (g *Gateway) CreatePost(ctx context.Context, in model.PostInput) string {
	platform := ""
	if in.Platform != nil {
		platform = string(*in.Platform)
	}
	return g.create(ctx, model.CollectionPosts, in.Fields(),
		advisory.Success("Post Added", fmt.Sprintf("A new post for %s has been added.", platform)),
		"Error adding post")
}

// UpdateTask merges the defined fields of in into task id. It reports whether
// the write was accepted.
func (g *Gateway) UpdateTask(ctx context.Context, id string, in model.TaskInput) bool {
	label, _ := g.labels.TaskTitle(id)
	if in.Title != nil {
		label = *in.Title
	}
	return g.update(ctx, model.CollectionTasks, id, in.Fields(),
		advisory.Success("Task Updated", fmt.Sprintf("Task %q has been successfully updated.", label)),
		"Error updating task")
}

func (g *Gateway) UpdatePost(ctx context.Context, id string, in model.PostInput) bool {
	label, _ := g.labels.PostLabel(id)
	if in.Platform != nil {
		label = string(*in.Platform)
	}
	return g.update(ctx, model.CollectionPosts, id, in.Fields(),
		advisory.Success("Post Updated", fmt.Sprintf("Post for %s has been updated.", label)),
		"Error updating post")
}

// UpdateTaskPriority is the narrow write behind applying a suggestion.
func (g *Gateway) UpdateTaskPriority(ctx context.Context, id string, p model.Priority) bool {
	return g.update(ctx, model.CollectionTasks, id, model.TaskInput{Priority: &p}.Fields(),
		advisory.Success("Priority Updated", fmt.Sprintf("Task priority set to %s.", p)),
		"Error updating priority")
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) bool {
	label, ok := g.labels.TaskTitle(id)
	if !ok {
		label = id
	}
	return g.delete(ctx, model.CollectionTasks, id,
		advisory.Success("Task Deleted", fmt.Sprintf("Task %q has been deleted.", label)),
		"Error deleting task")
}

func (g *Gateway) DeletePost(ctx context.Context, id string) bool {
	label, ok := g.labels.PostLabel(id)
	if !ok {
		label = "unknown platform"
	}
	return g.delete(ctx, model.CollectionPosts, id,
		advisory.Success("Post Deleted", fmt.Sprintf("Post for %s has been deleted.", label)),
		"Error deleting post")
}

func (g *Gateway) create(ctx context.Context, collection string, fields map[string]any, ok advisory.Advisory, failTitle string) string {
	id := g.identity()
	if id == nil {
		g.rejectUnauthenticated(ctx, collection, "create")
		return ""
	}

	data := model.StripUndefined(fields)
	// nothing to clear on a new document
	for k, v := range data {
		if docstore.IsDeleteField(v) {
			delete(data, k)
		}
	}
	data["userId"] = id.UID
	data["createdAt"] = docstore.ServerTimestamp()
	data["updatedAt"] = docstore.ServerTimestamp()

	docID, err := g.store.Add(ctx, docstore.CollectionPath(id.UID, collection), data)
	if err != nil {
		g.fail(ctx, collection, "create", "", failTitle, err)
		return ""
	}

	metrics.IncrementMutation(collection, "create", "success")
	logger.WithTrace(ctx, g.logger).Info("Document created",
		zap.String("user_id", id.UID),
		zap.String("collection", collection),
		zap.String("document_id", docID),
	)
	advisory.Emit(ctx, g.sink, ok)
	return docID
}

func (g *Gateway) update(ctx context.Context, collection, docID string, fields map[string]any, ok advisory.Advisory, failTitle string) bool {
	id := g.identity()
	if id == nil {
		g.rejectUnauthenticated(ctx, collection, "update")
		return false
	}

	data := model.StripUndefined(fields)
	delete(data, "createdAt")
	delete(data, "userId")
	data["updatedAt"] = docstore.ServerTimestamp()

	if err := g.store.Update(ctx, docstore.CollectionPath(id.UID, collection), docID, data); err != nil {
		g.fail(ctx, collection, "update", docID, failTitle, err)
		return false
	}

	metrics.IncrementMutation(collection, "update", "success")
	logger.WithTrace(ctx, g.logger).Info("Document updated",
		zap.String("user_id", id.UID),
		zap.String("collection", collection),
		zap.String("document_id", docID),
	)
	advisory.Emit(ctx, g.sink, ok)
	return true
}

func (g *Gateway) delete(ctx context.Context, collection, docID string, ok advisory.Advisory, failTitle string) bool {
	id := g.identity()
	if id == nil {
		g.rejectUnauthenticated(ctx, collection, "delete")
		return false
	}

	if err := g.store.Delete(ctx, docstore.CollectionPath(id.UID, collection), docID); err != nil {
		g.fail(ctx, collection, "delete", docID, failTitle, err)
		return false
	}

	metrics.IncrementMutation(collection, "delete", "success")
	logger.WithTrace(ctx, g.logger).Info("Document deleted",
		zap.String("user_id", id.UID),
		zap.String("collection", collection),
		zap.String("document_id", docID),
	)
	advisory.Emit(ctx, g.sink, ok)
	return true
}

func (g *Gateway) rejectUnauthenticated(ctx context.Context, collection, op string) {
	metrics.IncrementMutation(collection, op, "rejected")
	advisory.Emit(ctx, g.sink, advisory.Failure("Not authenticated", "You must be signed in to make changes.", "unauthenticated"))
}

func (g *Gateway) fail(ctx context.Context, collection, op, docID, title string, err error) {
	_, kind := util.ClassifyError(err)
	metrics.IncrementMutation(collection, op, "failed")
	logger.WithTrace(ctx, g.logger).Error("Document write failed",
		zap.String("collection", collection),
		zap.String("op", op),
		zap.String("document_id", docID),
		zap.String("error_type", kind),
		zap.Error(err),
	)
	advisory.Emit(ctx, g.sink, advisory.Failure(title, docstore.MessageOf(err), string(docstore.CodeOf(err))))
}
