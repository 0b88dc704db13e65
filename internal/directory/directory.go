// Package directory is the engine's read-only view of the external directory
// service: batches, modules, lecturers and the classroom and equipment pools
// available to be reserved. The engine never writes directory data.
package directory

import (
	"context"

	"lectio/pkg/model"
)

type Service interface {
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	GetModule(ctx context.Context, moduleID string) (*model.Module, error)
	GetModuleLecturers(ctx context.Context, moduleID string) ([]model.Lecturer, error)
	GetClassrooms(ctx context.Context) ([]model.Classroom, error)
	GetEquipment(ctx context.Context) ([]model.Equipment, error)
}
