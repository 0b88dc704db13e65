package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lectio/pkg/client"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/logger"
	"lectio/pkg/model"
)

type httpDirectory struct {
	client *client.HttpClient
	log    *logger.Logger
}

func NewHTTPDirectory(baseURL string, timeout time.Duration, log *logger.Logger) Service {
	return &httpDirectory{
		client: client.NewHttpClient(baseURL, timeout),
		log:    log,
	}
}

func (d *httpDirectory) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	var batch model.Batch
	if err := d.get(ctx, "/api/v1/batches/id/"+batchID, "Batch", batchID, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (d *httpDirectory) GetModule(ctx context.Context, moduleID string) (*model.Module, error) {
	var module model.Module
	if err := d.get(ctx, "/api/v1/modules/id/"+moduleID, "Module", moduleID, &module); err != nil {
		return nil, err
	}
	return &module, nil
}

func (d *httpDirectory) GetModuleLecturers(ctx context.Context, moduleID string) ([]model.Lecturer, error) {
	var lecturers []model.Lecturer
	if err := d.get(ctx, "/api/v1/modules/id/"+moduleID+"/lecturers", "Module", moduleID, &lecturers); err != nil {
		return nil, err
	}
	return lecturers, nil
}

func (d *httpDirectory) GetClassrooms(ctx context.Context) ([]model.Classroom, error) {
	var classrooms []model.Classroom
	if err := d.get(ctx, "/api/v1/classrooms", "Classrooms", "", &classrooms); err != nil {
		return nil, err
	}
	return classrooms, nil
}

func (d *httpDirectory) GetEquipment(ctx context.Context) ([]model.Equipment, error) {
	var equipment []model.Equipment
	if err := d.get(ctx, "/api/v1/equipment", "Equipment", "", &equipment); err != nil {
		return nil, err
	}
	return equipment, nil
}

// get fetches a directory resource and unwraps the standard {"data": ...}
// envelope.
func (d *httpDirectory) get(ctx context.Context, path, resource, id string, target any) error {
	resp, err := d.client.GET(ctx, path)
	if err != nil {
		d.log.Error("Directory request failed", "path", path, "error", err)
		return apperrors.Unavailable("Resource directory")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		if id != "" {
			return apperrors.NotFoundWithID(resource, id)
		}
		return apperrors.NotFound(resource)
	default:
		d.log.Error("Directory returned unexpected status", "path", path, "status", resp.StatusCode)
		return apperrors.Internal("Resource directory request failed",
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path))
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: target}
	if err := resp.DecodeJSON(&envelope); err != nil {
		return apperrors.Internal("Failed to decode directory response", err)
	}

	return nil
}
