package repository

import (
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type provisioningRepository struct {
	db *gorm.DB
}

// NewProvisioningRepository creates a new provisioning repository instance
func NewProvisioningRepository(db *gorm.DB) ProvisioningRepository {
	return &provisioningRepository{db: db}
}

// CreateJobIfNotExists creates the job for its order once and returns the stored job.
func (r *provisioningRepository) CreateJobIfNotExists(job *models.ProvisioningJob) (*models.ProvisioningJob, bool, error) {
	if job.Status == "" {
		job.Status = models.ProvisioningStatusQueued
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(job)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	stored, err := r.GetJobByOrderID(job.OrderID)
	if err != nil {
		return nil, false, err
	}
	return stored, tx.RowsAffected == 1, nil
}

// GetJobByID loads the job with its order, plan and customer.
func (r *provisioningRepository) GetJobByID(id uint) (*models.ProvisioningJob, error) {
	var job models.ProvisioningJob
	err := r.db.Preload("Order").Preload("Order.ServicePlan").Preload("Order.Customer").First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *provisioningRepository) GetJobByOrderID(orderID uint) (*models.ProvisioningJob, error) {
	var job models.ProvisioningJob
	if err := r.db.Where("order_id = ?", orderID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob moves a queued job to provisioning and stamps started_at.
// With reclaim set, a job already provisioning is claimed again and its
// window restarts.
func (r *provisioningRepository) ClaimJob(id uint, reclaim bool, now time.Time) (bool, error) {
	from := []string{models.ProvisioningStatusQueued}
	if reclaim {
		from = append(from, models.ProvisioningStatusProvisioning)
	}
	tx := r.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     models.ProvisioningStatusProvisioning,
			"started_at": now,
		})
	return tx.RowsAffected == 1, tx.Error
}

// CompleteJob marks the job ready and creates its instance in one
// transaction. It returns false when the job was no longer provisioning.
func (r *provisioningRepository) CompleteJob(id uint, externalID string, payload datatypes.JSON, instance *models.ProvisionedInstance, now time.Time) (bool, error) {
	completed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":        models.ProvisioningStatusReady,
			"external_id":   externalID,
			"error_message": "",
			"completed_at":  now,
		}
		if len(payload) > 0 {
			updates["payload"] = payload
		}
		res := tx.Model(&models.ProvisioningJob{}).
			Where("id = ? AND status = ?", id, models.ProvisioningStatusProvisioning).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		instance.ProvisioningJobID = id
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provisioning_job_id"}},
			DoNothing: true,
		}).Create(instance).Error; err != nil {
			return err
		}
		completed = true
		return nil
	})
	return completed, err
}

// RecordJobError stores the latest provider error while the job stays provisioning.
func (r *provisioningRepository) RecordJobError(id uint, message string) error {
	return r.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ?", id, models.ProvisioningStatusProvisioning).
		Update("error_message", message).Error
}

func (r *provisioningRepository) FailJob(id uint, message string, now time.Time) (bool, error) {
	tx := r.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ?", id, models.ProvisioningStatusProvisioning).
		Updates(map[string]interface{}{
			"status":        models.ProvisioningStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (r *provisioningRepository) ListStaleJobs(startedBefore time.Time) ([]models.ProvisioningJob, error) {
	var jobs []models.ProvisioningJob
	err := r.db.
		Where("status = ? AND started_at < ?", models.ProvisioningStatusProvisioning, startedBefore).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// FailStaleJob fails the job only if it is still provisioning with a
// window that started before startedBefore, so a fresh reclaim is not hit.
func (r *provisioningRepository) FailStaleJob(id uint, startedBefore time.Time, message string, now time.Time) (bool, error) {
	tx := r.db.Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ? AND started_at < ?", id, models.ProvisioningStatusProvisioning, startedBefore).
		Updates(map[string]interface{}{
			"status":        models.ProvisioningStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (r *provisioningRepository) GetInstanceByID(id uint) (*models.ProvisionedInstance, error) {
	var instance models.ProvisionedInstance
	if err := r.db.First(&instance, id).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *provisioningRepository) UpdateInstanceStatus(id uint, status string) error {
	tx := r.db.Model(&models.ProvisionedInstance{}).Where("id = ?", id).Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *provisioningRepository) GetInstanceByJobID(jobID uint) (*models.ProvisionedInstance, error) {
	var instance models.ProvisionedInstance
	if err := r.db.Where("provisioning_job_id = ?", jobID).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *provisioningRepository) CountInstancesByOrder(orderID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ProvisionedInstance{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}
