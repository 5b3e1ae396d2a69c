// Package warehouse re-expresses the sessionization, enrichment, aggregation,
// and labeling pipeline as declarative SQL plans executed by the remote
// columnar store. Per-row computation in process does not scale to
// full-population training tables; this path materializes the same feature
// rows as pkg/features in one bulk job.
package warehouse

import (
	"context"
	"fmt"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

// Tables holds the fully-qualified table ids the pipeline reads and writes.
type Tables struct {
	MachineData  string
	Sessionized  string
	Registration string
	Demographics string
	Features     string
}

// TablesFromConfig builds project.dataset.table ids from configuration.
func TablesFromConfig(cfg *config.Config) Tables {
	qualify := func(table string) string {
		return fmt.Sprintf("%s.%s.%s", cfg.WarehouseProject, cfg.WarehouseDataset, table)
	}
	return Tables{
		MachineData:  qualify(cfg.MachineDataTable),
		Sessionized:  qualify(cfg.SessionizedTable),
		Registration: qualify(cfg.RegistrationTable),
		Demographics: qualify(cfg.DemographicsTable),
		Features:     qualify(cfg.FeaturesTable),
	}
}

// Pipeline drives the bulk feature-engineering stages.
type Pipeline struct {
	runner QueryRunner
	tables Tables
	params config.PipelineParams
}

func NewPipeline(runner QueryRunner, tables Tables, params config.PipelineParams) *Pipeline {
	return &Pipeline{runner: runner, tables: tables, params: params}
}

// SessionizeMachineData creates or replaces the sessionized table: raw epoch
// timestamps become proper timestamps, and each record is assigned a session
// id from the gap-threshold rule.
func (p *Pipeline) SessionizeMachineData(ctx context.Context) error {
	sql := SessionizeSQL(p.tables.MachineData, p.tables.Sessionized, p.params.SessionWindowHours)
	logger.Log.WithField("table", p.tables.Sessionized).Info("creating sessionized machine data table")
	if err := p.runner.RunQuery(ctx, sql); err != nil {
		return fmt.Errorf("sessionize: %w", err)
	}
	return nil
}

// BuildFeatures creates or replaces the engineered features table from the
// sessionized, registration, and demographics tables.
func (p *Pipeline) BuildFeatures(ctx context.Context) error {
	sql := FeaturesSQL(p.tables, p.params)
	logger.Log.WithField("table", p.tables.Features).Info("creating engineered features table")
	if err := p.runner.RunQuery(ctx, sql); err != nil {
		return fmt.Errorf("feature engineering: %w", err)
	}
	return nil
}

// SessionizeSQL builds the declarative equivalent of session.Sessionize. A
// new session starts when the gap to the previous record for the same pid
// exceeds sessionWindow hours, or when there is no previous record. Ordinals
// are zero-based to match the in-process session ids.
func SessionizeSQL(sourceTable, destTable string, sessionWindow int) string {
	return fmt.Sprintf(`
        CREATE OR REPLACE TABLE `+"`%s`"+` AS (
        WITH
            NewSessionFlags AS (
            SELECT
                pid,
                SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64)) AS datatime,
                sbp,
                dbp,
                dia_temp_value,
                conductivity,
                uf,
                blood_flow,
                CASE
                WHEN
                    LAG(SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64)), 1) OVER (
                    PARTITION BY pid ORDER BY SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64))
                    ) IS NULL
                    THEN 1
                WHEN
                    TIMESTAMP_DIFF(
                    SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64)),
                    LAG(SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64)), 1) OVER (
                        PARTITION BY pid ORDER BY SAFE.TIMESTAMP_MICROS(CAST(datatime / 1000 AS INT64))
                    ),
                    HOUR
                    ) > %d
                    THEN 1
                ELSE 0
                END AS is_new_session
            FROM
                `+"`%s`"+`
            ),

            SessionIdentifiers AS (
            SELECT
                *,
                CONCAT(
                CAST(pid AS STRING),
                '_',
                CAST(SUM(is_new_session) OVER (PARTITION BY pid ORDER BY datatime) - 1 AS STRING)
                ) AS session_id
            FROM
                NewSessionFlags
            )

        SELECT
            *,
            MIN(datatime) OVER (PARTITION BY session_id) AS session_start_ts
        FROM
            SessionIdentifiers
        );`, destTable, sessionWindow, sourceTable)
}

// FeaturesSQL builds the feature-engineering plan: join registration and
// demographics, bin into fixed intervals, derive static and windowed
// features, label each bin against its forward horizon, and stamp the
// hash-based dataset split.
func FeaturesSQL(tables Tables, params config.PipelineParams) string {
	return fmt.Sprintf(`
        CREATE OR REPLACE TABLE `+"`%s`"+` AS (
            WITH
            SessionizedMachineData AS (
            SELECT
                pid,
                CAST(datatime AS TIMESTAMP) AS measurement_timestamp,
                sbp, dbp, dia_temp_value, conductivity, uf, blood_flow,
                is_new_session,
                session_id,
                COALESCE(
                session_start_ts,
                MIN(CAST(datatime AS TIMESTAMP)) OVER (PARTITION BY session_id)
                ) AS session_start_ts
            FROM `+"`%s`"+`
            ),

            CombinedData AS (
            SELECT
                m.*,
                r.weightstart,
                r.dryweight,
                p.gender,
                p.birthday,
                p.DM,
                SAFE.TIMESTAMP_MICROS(CAST(p.first_dialysis / 1000 AS INT64)) AS first_dialysis_ts
            FROM SessionizedMachineData m
            JOIN `+"`%s`"+` AS r
                ON m.pid = r.pid
            AND DATE(m.session_start_ts) = DATE(SAFE.TIMESTAMP_MICROS(CAST(r.keyindate / 1000 AS INT64)))
            JOIN `+"`%s`"+` AS p
                ON m.pid = p.pid
            ),

            TimeBinnedData AS (
            SELECT
                pid, session_id,
                TIMESTAMP_SECONDS(DIV(UNIX_SECONDS(measurement_timestamp), %d * 60) * (%d * 60)) AS time_bin,
                ANY_VALUE(session_start_ts) AS session_start_ts,
                AVG(sbp) AS avg_sbp, MIN(sbp) AS min_sbp, STDDEV(sbp) AS stddev_sbp,
                AVG(dbp) AS avg_dbp, AVG(dia_temp_value) AS avg_dia_temp, AVG(conductivity) AS avg_conductivity,
                AVG(uf) AS avg_uf_rate, AVG(blood_flow) AS avg_blood_flow,
                ANY_VALUE(weightstart) AS weight_start, ANY_VALUE(dryweight) AS dry_weight,
                ANY_VALUE(gender) AS gender, ANY_VALUE(birthday) AS birthday,
                ANY_VALUE(DM) AS DM, ANY_VALUE(first_dialysis_ts) AS first_dialysis_ts
            FROM CombinedData
            WHERE measurement_timestamp IS NOT NULL
            GROUP BY 1, 2, 3
            ),

            StaticAndSessionFeatures AS (
            SELECT
                *,
                EXTRACT(YEAR FROM session_start_ts) - birthday AS age_at_session,
                TIMESTAMP_DIFF(session_start_ts, first_dialysis_ts, DAY) / 365.25 AS dialysis_vintage_years,
                weight_start - dry_weight AS fluid_to_remove,
                TIMESTAMP_DIFF(time_bin, session_start_ts, SECOND) / 60 AS minutes_into_session
            FROM TimeBinnedData
            ),

            FinalFeatures AS (
            SELECT
                *,
                LAG(avg_sbp, 1) OVER (PARTITION BY session_id ORDER BY time_bin) AS lag_1_avg_sbp,
                avg_sbp - LAG(avg_sbp, 1) OVER (PARTITION BY session_id ORDER BY time_bin) AS trend_1_sbp,
                LAG(avg_uf_rate, 1) OVER (PARTITION BY session_id ORDER BY time_bin) AS lag_1_avg_uf_rate,
                avg_conductivity - LAG(avg_conductivity, 1) OVER (PARTITION BY session_id ORDER BY time_bin) AS trend_1_conductivity,
                AVG(avg_sbp) OVER (PARTITION BY session_id ORDER BY time_bin ROWS BETWEEN %d PRECEDING AND CURRENT ROW) AS rolling_avg_sbp,
                MAX(avg_sbp) OVER (PARTITION BY session_id ORDER BY time_bin ROWS BETWEEN %d PRECEDING AND CURRENT ROW) AS rolling_max_sbp,
                STDDEV(avg_sbp) OVER (PARTITION BY session_id ORDER BY time_bin ROWS BETWEEN %d PRECEDING AND CURRENT ROW) AS rolling_stddev_sbp,
                MAX(IF(min_sbp < %g, 1, 0)) OVER (PARTITION BY session_id ORDER BY time_bin ROWS BETWEEN 1 FOLLOWING AND %d FOLLOWING)
                AS hypotension_ahead
            FROM StaticAndSessionFeatures
            )

            SELECT
            %s AS dataset_split,

            pid, session_id, time_bin,
            age_at_session, dialysis_vintage_years, fluid_to_remove, minutes_into_session,
            gender, DM,
            avg_sbp, min_sbp, stddev_sbp, avg_dbp, avg_dia_temp, avg_conductivity, avg_uf_rate, avg_blood_flow,
            lag_1_avg_sbp, trend_1_sbp,
            lag_1_avg_uf_rate,
            trend_1_conductivity,
            rolling_avg_sbp, rolling_max_sbp, rolling_stddev_sbp,
            COALESCE(hypotension_ahead, 0) AS label
            FROM FinalFeatures
        );`,
		tables.Features,
		tables.Sessionized,
		tables.Registration,
		tables.Demographics,
		params.IntervalMinutes, params.IntervalMinutes,
		rollingPreceding(params.RollingWindow), rollingPreceding(params.RollingWindow), rollingPreceding(params.RollingWindow),
		params.HypotensionLimit,
		params.PredictionIntervals,
		splitExpression(),
	)
}

// rollingPreceding converts a window size (current row included) to the
// PRECEDING bound of the frame clause.
func rollingPreceding(window int) int {
	if window <= 1 {
		return 0
	}
	return window - 1
}
